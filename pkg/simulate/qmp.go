package simulate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// qmpMaxLine caps a single line read from the QMP server.
const qmpMaxLine = 1024 * 1024 // 1 MB

// defaultQMPTimeout bounds a command round trip when ctx has no deadline.
const defaultQMPTimeout = 5 * time.Second

// CommandError is an error response from the QMP server.
type CommandError struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("qmp: %s: %s", e.Class, e.Desc)
}

// Greeting is the banner the QMP server sends on connect.
type Greeting struct {
	QMP struct {
		Version struct {
			Package string `json:"package"`
			Qemu    struct {
				Major int `json:"major"`
				Minor int `json:"minor"`
				Micro int `json:"micro"`
			} `json:"qemu"`
		} `json:"version"`
		Capabilities []string `json:"capabilities"`
	} `json:"QMP"`
}

// Version renders the server version as major.minor.micro.
func (g *Greeting) Version() string {
	v := g.QMP.Version.Qemu
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

// Event is an asynchronous QMP event.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// GuestStatus is the response to query-status.
type GuestStatus struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

// response is one line from the server: a command result, an error, or an
// interleaved event.
type response struct {
	Return json.RawMessage `json:"return,omitempty"`
	Error  *CommandError   `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	ID     *int            `json:"id,omitempty"`
}

// Client speaks the QEMU Machine Protocol, newline-delimited JSON over a
// stream socket.
type Client struct {
	conn     net.Conn
	w        *bufio.Writer
	scanner  *bufio.Scanner
	greeting *Greeting

	mu     sync.Mutex
	seq    int
	events []Event
}

// Dial connects to a QMP Unix socket and negotiates capabilities.
func Dial(ctx context.Context, socket string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("failed to dial QMP socket: %w", err)
	}

	client, err := attach(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return client, nil
}

// attach wraps an established connection and performs the QMP handshake:
// read the greeting, then negotiate capabilities to leave command mode.
func attach(ctx context.Context, conn net.Conn) (*Client, error) {
	scanner := bufio.NewScanner(conn)
	// Set a large buffer for potentially large responses
	buf := make([]byte, qmpMaxLine)
	scanner.Buffer(buf, qmpMaxLine)

	c := &Client{
		conn:    conn,
		w:       bufio.NewWriter(conn),
		scanner: scanner,
	}

	if err := c.readGreeting(ctx); err != nil {
		return nil, err
	}
	if _, err := c.Execute(ctx, "qmp_capabilities", nil); err != nil {
		return nil, fmt.Errorf("capability negotiation failed: %w", err)
	}

	return c, nil
}

// Greeting returns the server banner captured at connect time.
func (c *Client) Greeting() *Greeting {
	return c.greeting
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Execute runs a QMP command and returns its raw return value. Events that
// arrive while waiting for the response are collected and available
// through Events.
func (c *Client) Execute(ctx context.Context, command string, arguments any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	id := c.seq

	req := struct {
		Execute   string `json:"execute"`
		Arguments any    `json:"arguments,omitempty"`
		ID        int    `json:"id"`
	}{Execute: command, Arguments: arguments, ID: id}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	if err := c.deadlineFrom(ctx); err != nil {
		return nil, err
	}
	defer c.conn.SetDeadline(time.Time{})

	if _, err := c.w.Write(line); err != nil {
		return nil, fmt.Errorf("failed to write command: %w", err)
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return nil, fmt.Errorf("failed to write newline: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush: %w", err)
	}

	for {
		resp, err := c.readResponse()
		if err != nil {
			return nil, err
		}

		// Asynchronous events interleave with responses
		if resp.Event != "" {
			c.events = append(c.events, Event{Event: resp.Event, Data: resp.Data})
			continue
		}
		if resp.ID == nil || *resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Return, nil
	}
}

// Status reports the guest run state.
func (c *Client) Status(ctx context.Context) (*GuestStatus, error) {
	ret, err := c.Execute(ctx, "query-status", nil)
	if err != nil {
		return nil, err
	}

	var status GuestStatus
	if err := json.Unmarshal(ret, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}

// Powerdown sends the guest an ACPI powerdown request.
func (c *Client) Powerdown(ctx context.Context) error {
	_, err := c.Execute(ctx, "system_powerdown", nil)
	return err
}

// Quit terminates the emulator.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.Execute(ctx, "quit", nil)
	return err
}

// Events returns the asynchronous events collected so far.
func (c *Client) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// readGreeting consumes and validates the server banner.
func (c *Client) readGreeting(ctx context.Context) error {
	if err := c.deadlineFrom(ctx); err != nil {
		return err
	}
	defer c.conn.SetDeadline(time.Time{})

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return fmt.Errorf("failed to read greeting: %w", err)
		}
		return fmt.Errorf("connection closed before greeting")
	}

	var banner map[string]json.RawMessage
	if err := json.Unmarshal(c.scanner.Bytes(), &banner); err != nil {
		return fmt.Errorf("failed to unmarshal greeting: %w", err)
	}
	if _, ok := banner["QMP"]; !ok {
		return fmt.Errorf("not a QMP server: greeting missing QMP banner")
	}

	var greeting Greeting
	if err := json.Unmarshal(c.scanner.Bytes(), &greeting); err != nil {
		return fmt.Errorf("failed to unmarshal greeting: %w", err)
	}
	c.greeting = &greeting

	return nil
}

// readResponse reads and decodes the next line from the server.
func (c *Client) readResponse() (*response, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		return nil, io.EOF
	}

	line := c.scanner.Bytes()
	if len(line) == 0 {
		return nil, fmt.Errorf("empty line")
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

// deadlineFrom applies the ctx deadline to the connection, bounded by a
// default so a wedged emulator cannot hang a command forever.
func (c *Client) deadlineFrom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultQMPTimeout)
	}
	return c.conn.SetDeadline(deadline)
}
