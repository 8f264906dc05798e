package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fel4os/fel4/pkg/pipeline"
	"github.com/fel4os/fel4/pkg/stores"
	"github.com/fel4os/fel4/pkg/transports/ssh"
)

// DeployStore is the slice of the history store deployments are recorded
// into.
type DeployStore interface {
	CreateDeployment(ctx context.Context, deployment *stores.Deployment) error
	UpdateDeploymentStatus(ctx context.Context, id string, status stores.DeploymentStatus, errMsg *string) error
}

// Options tune how a deployment runs.
type Options struct {
	// ImageMode is the permission set on the uploaded image. Defaults
	// to 0644.
	ImageMode uint32

	// SkipVerify disables the post-upload checksum comparison.
	SkipVerify bool

	// SkipPostDeploy disables the board's post-deploy command.
	SkipPostDeploy bool
}

// Deployer pushes boot images to one board and records the outcome.
type Deployer struct {
	board *Board
	store DeployStore
	opts  Options

	// dial is swapped out in tests.
	dial func(config *ssh.Config) (ssh.Transport, error)
}

// NewDeployer creates a deployer for a board. The store may be nil, in
// which case deployments are not recorded.
func NewDeployer(board *Board, store DeployStore, opts Options) (*Deployer, error) {
	if board == nil {
		return nil, fmt.Errorf("board is required")
	}

	if opts.ImageMode == 0 {
		opts.ImageMode = 0644
	}

	return &Deployer{
		board: board,
		store: store,
		opts:  opts,
		dial: func(config *ssh.Config) (ssh.Transport, error) {
			return ssh.NewClient(config)
		},
	}, nil
}

// Deploy uploads the build's boot image to the board, verifies the
// transfer, and runs the board's post-deploy command. The returned
// deployment reflects the final status even when the deploy failed.
func (d *Deployer) Deploy(ctx context.Context, build *pipeline.BuildRecord) (*stores.Deployment, error) {
	if build == nil {
		return nil, pipeline.NewPermanentError("no build to deploy", nil).
			WithOperation("deploy").
			WithCode(pipeline.ErrCodeValidation)
	}

	imagePath := bootImagePath(build)
	if imagePath == "" {
		return nil, pipeline.NewPermanentError("build has no boot image", nil).
			WithOperation("deploy").
			WithCode(pipeline.ErrCodeArtifactMissing)
	}
	if _, err := os.Stat(imagePath); err != nil {
		return nil, pipeline.NewPermanentError("boot image missing", err).
			WithOperation("deploy").
			WithCode(pipeline.ErrCodeArtifactMissing)
	}

	startTime := time.Now()
	remotePath := d.board.RemoteImagePath(imagePath)

	log.Info().
		Str("board", d.board.Name).
		Str("host", d.board.Host).
		Str("image", imagePath).
		Str("remote", remotePath).
		Msg("Deploying image")

	now := time.Now()
	deployment := &stores.Deployment{
		ID:        uuid.New().String(),
		BuildID:   build.BuildID,
		Board:     d.board.Name,
		Host:      d.board.Host,
		ImagePath: imagePath,
		Status:    stores.DeploymentStatusPending,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	recorded := d.record(ctx, deployment)

	transport, err := d.dial(d.board.TransportConfig())
	if err != nil {
		return deployment, d.fail(deployment, recorded, classify("transport setup", err))
	}

	if err := transport.Connect(ctx); err != nil {
		return deployment, d.fail(deployment, recorded, classify("connect", err))
	}
	defer func() {
		if err := transport.Disconnect(); err != nil {
			log.Warn().Err(err).Str("board", d.board.Name).Msg("Failed to disconnect from board")
		}
	}()

	d.setStatus(deployment, recorded, stores.DeploymentStatusTransferring, nil)

	if err := transport.UploadFile(ctx, imagePath, remotePath, d.opts.ImageMode); err != nil {
		return deployment, d.fail(deployment, recorded, classify("upload", err))
	}

	if !d.opts.SkipVerify {
		if err := transport.VerifyUpload(ctx, imagePath, remotePath); err != nil {
			return deployment, d.fail(deployment, recorded, classify("verify", err))
		}
	}

	if d.board.PostDeploy != "" && !d.opts.SkipPostDeploy {
		d.setStatus(deployment, recorded, stores.DeploymentStatusFlashing, nil)

		stdout, stderr, err := transport.ExecuteCommand(ctx, d.board.PostDeploy)
		if err != nil {
			return deployment, d.fail(deployment, recorded, classify("post-deploy", err))
		}
		log.Debug().
			Str("command", d.board.PostDeploy).
			Str("stdout", stdout).
			Str("stderr", stderr).
			Msg("Post-deploy command completed")
	}

	d.setStatus(deployment, recorded, stores.DeploymentStatusVerified, nil)

	log.Info().
		Str("board", d.board.Name).
		Str("deployment_id", deployment.ID).
		Dur("duration", time.Since(startTime)).
		Msg("Deployment completed")

	return deployment, nil
}

// Hook adapts the deployer to the pipeline's deploy step.
func (d *Deployer) Hook() pipeline.DeployHook {
	return func(ctx context.Context, build *pipeline.BuildRecord, result *pipeline.StepResult) error {
		deployment, err := d.Deploy(ctx, build)
		if err != nil {
			return err
		}

		result.Output = fmt.Sprintf("deployed %s to %s:%s",
			deployment.ImagePath, d.board.Name, d.board.RemoteImagePath(deployment.ImagePath))
		return nil
	}
}

// record creates the deployment row. A store failure is logged, not fatal.
func (d *Deployer) record(ctx context.Context, deployment *stores.Deployment) bool {
	if d.store == nil {
		return false
	}

	if err := d.store.CreateDeployment(ctx, deployment); err != nil {
		log.Error().Err(err).Str("deployment_id", deployment.ID).Msg("Failed to record deployment")
		return false
	}

	return true
}

// setStatus moves the deployment through its lifecycle, locally and in the
// store. Status writes use a background context so a cancelled deploy still
// records its failure.
func (d *Deployer) setStatus(deployment *stores.Deployment, recorded bool, status stores.DeploymentStatus, deployErr error) {
	deployment.Status = status
	if !recorded {
		return
	}

	var errMsg *string
	if deployErr != nil {
		s := deployErr.Error()
		errMsg = &s
	}

	if err := d.store.UpdateDeploymentStatus(context.Background(), deployment.ID, status, errMsg); err != nil {
		log.Error().Err(err).Str("deployment_id", deployment.ID).Msg("Failed to update deployment status")
	}
}

// fail marks the deployment failed and passes the error through.
func (d *Deployer) fail(deployment *stores.Deployment, recorded bool, err error) error {
	d.setStatus(deployment, recorded, stores.DeploymentStatusFailed, err)
	return err
}

// bootImagePath finds the staged boot image for a build, preferring the
// direct path over the artifact list.
func bootImagePath(build *pipeline.BuildRecord) string {
	if build.ImagePath != "" {
		return build.ImagePath
	}
	for _, artifact := range build.Artifacts {
		if artifact.Kind == stores.ArtifactKindBootImage {
			return artifact.Path
		}
	}
	return ""
}

// classify maps transport errors onto pipeline error classes so the
// scheduler retries what is retryable.
func classify(op string, err error) *pipeline.PipelineError {
	var transportErr *ssh.TransportError
	if errors.As(err, &transportErr) && transportErr.IsTemporary {
		return pipeline.NewTransientError("deploy "+op+" failed", err).WithOperation("deploy")
	}
	return pipeline.NewPermanentError("deploy "+op+" failed", err).WithOperation("deploy")
}
