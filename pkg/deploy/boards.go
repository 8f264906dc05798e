// Package deploy pushes packaged boot images to lab boards over SSH and
// records the outcome in build history.
package deploy

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fel4os/fel4/pkg/transports/ssh"
)

// InventoryFilename is the conventional name of the board inventory file.
const InventoryFilename = "boards.yaml"

var boardValidator = validator.New()

// Board describes one deployment target from the board inventory.
type Board struct {
	// Name is the inventory key boards are selected by.
	Name string `yaml:"name" validate:"required"`

	// Host is the board's address.
	Host string `yaml:"host" validate:"required"`

	// Port is the SSH port. Defaults to 22.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// User is the SSH login.
	User string `yaml:"user" validate:"required"`

	// Auth selects the authentication method: key, password, or agent.
	// Defaults to key.
	Auth string `yaml:"auth" validate:"oneof=key password agent"`

	// PrivateKeyPath points at the key for key authentication. Empty
	// falls back to the default keys under ~/.ssh.
	PrivateKeyPath string `yaml:"private_key_path"`

	// Password is the password for password authentication.
	Password string `yaml:"password"`

	// KnownHostsPath overrides the default known_hosts file.
	KnownHostsPath string `yaml:"known_hosts_path"`

	// InsecureHostKey disables host key verification for boards that
	// regenerate their host key on every flash.
	InsecureHostKey bool `yaml:"insecure_host_key"`

	// ImageDir is the remote directory boot images are uploaded into.
	ImageDir string `yaml:"image_dir" validate:"required"`

	// PostDeploy is an optional command run on the board after the
	// upload is verified, typically a reboot-into-image helper.
	PostDeploy string `yaml:"post_deploy"`
}

// Inventory is a parsed board inventory file.
type Inventory struct {
	// Boards lists the known deployment targets.
	Boards []Board `yaml:"boards"`

	// Path is where the inventory was loaded from, when it came from disk.
	Path string `yaml:"-"`
}

// LoadInventory reads and validates a board inventory file.
func LoadInventory(invPath string) (*Inventory, error) {
	data, err := os.ReadFile(invPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read board inventory: %w", err)
	}

	inv, err := ParseInventory(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", invPath, err)
	}
	inv.Path = invPath

	log.Debug().
		Str("path", invPath).
		Int("boards", len(inv.Boards)).
		Msg("Board inventory loaded")

	return inv, nil
}

// ParseInventory parses and validates board inventory YAML.
func ParseInventory(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse board inventory: %w", err)
	}

	if len(inv.Boards) == 0 {
		return nil, fmt.Errorf("board inventory defines no boards")
	}

	seen := make(map[string]bool, len(inv.Boards))
	for i := range inv.Boards {
		board := &inv.Boards[i]
		board.applyDefaults()

		if err := boardValidator.Struct(board); err != nil {
			return nil, fmt.Errorf("board %q: %w", board.Name, err)
		}

		if seen[board.Name] {
			return nil, fmt.Errorf("duplicate board name: %s", board.Name)
		}
		seen[board.Name] = true
	}

	return &inv, nil
}

// Board returns the named board.
func (inv *Inventory) Board(name string) (*Board, error) {
	for i := range inv.Boards {
		if inv.Boards[i].Name == name {
			return &inv.Boards[i], nil
		}
	}
	return nil, fmt.Errorf("board not found: %s (known boards: %s)",
		name, strings.Join(inv.Names(), ", "))
}

// Names returns the board names in sorted order.
func (inv *Inventory) Names() []string {
	names := make([]string, 0, len(inv.Boards))
	for i := range inv.Boards {
		names = append(names, inv.Boards[i].Name)
	}
	sort.Strings(names)
	return names
}

func (b *Board) applyDefaults() {
	if b.Port == 0 {
		b.Port = 22
	}
	if b.Auth == "" {
		b.Auth = string(ssh.AuthMethodKey)
	}
}

// TransportConfig builds the SSH configuration for this board.
func (b *Board) TransportConfig() *ssh.Config {
	config := ssh.DefaultConfig(b.Host, b.User)
	config.Port = b.Port
	config.AuthMethod = ssh.AuthMethod(b.Auth)
	config.Password = b.Password
	config.PrivateKeyPath = b.PrivateKeyPath
	if b.KnownHostsPath != "" {
		config.KnownHostsPath = b.KnownHostsPath
	}
	if b.InsecureHostKey {
		config.StrictHostKeyChecking = false
	}
	return config
}

// RemoteImagePath returns where a local image lands on the board. Remote
// paths are POSIX regardless of the local OS.
func (b *Board) RemoteImagePath(localPath string) string {
	return path.Join(b.ImageDir, filepath.Base(localPath))
}
