package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	units "github.com/docker/go-units"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/optimus/internal/common"
	"github.com/bobmcallan/optimus/internal/models"
	"github.com/bobmcallan/optimus/internal/registry"
)

// DockerEngine is the production Engine: one fresh, network-disabled,
// resource-capped container per test case, with guaranteed cleanup on
// every exit path (§4.D, §9 "Guaranteed cleanup of external resources").
type DockerEngine struct {
	cli        *client.Client
	registry   *registry.Registry
	logger     *common.Logger
	pullLimiter *rate.Limiter
}

// NewDockerEngine connects to the local Docker daemon via the standard
// environment variables (DOCKER_HOST etc).
func NewDockerEngine(reg *registry.Registry, logger *common.Logger) (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("engine: failed to connect to docker: %w", err)
	}
	return &DockerEngine{
		cli:      cli,
		registry: reg,
		logger:   logger,
		// One pull attempt per second sustained, bursts of 2 — paces
		// retries against a registry under load rather than hammering it.
		pullLimiter: rate.NewLimiter(rate.Limit(1), 2),
	}, nil
}

// Close releases the Docker client's connection.
func (e *DockerEngine) Close() error {
	return e.cli.Close()
}

// Prewarm probes/pulls every enabled language's image up front so the
// first real job for that language doesn't pay the pull latency (§4.D).
func (e *DockerEngine) Prewarm(ctx context.Context, langs []models.Language) error {
	for _, lang := range langs {
		entry, err := e.registry.Lookup(lang)
		if err != nil {
			return err
		}
		if err := e.ensureImage(ctx, entry.Image); err != nil {
			e.logger.Warn().Str("language", string(lang)).Str("image", entry.Image).Err(err).Msg("Prewarm: failed to pull image")
		}
	}
	return nil
}

// ensureImage probes for the image locally; on miss it pulls synchronously
// and retries, paced by pullLimiter (§4.D "Image cache").
func (e *DockerEngine) ensureImage(ctx context.Context, imageName string) error {
	list, err := e.cli.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", imageName)),
	})
	if err == nil && len(list) > 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := e.pullLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("engine: pull rate limiter: %w", err)
		}
		rc, err := e.cli.ImagePull(ctx, imageName, image.PullOptions{})
		if err != nil {
			lastErr = err
			continue
		}
		_, lastErr = io.Copy(io.Discard, rc)
		rc.Close()
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("engine: failed to pull image %s after retries: %w", imageName, lastErr)
}

// Execute runs sourceCode against input inside a fresh sandbox for lang,
// enforcing the hard timeout and guaranteeing container cleanup on every
// exit path (§4.D).
func (e *DockerEngine) Execute(ctx context.Context, lang models.Language, sourceCode string, input []byte, timeoutMS uint64) (models.TestExecutionOutput, error) {
	if err := ValidateInput(sourceCode, input); err != nil {
		return models.TestExecutionOutput{}, err
	}

	entry, err := e.registry.Lookup(lang)
	if err != nil {
		return models.TestExecutionOutput{}, err
	}

	if err := e.ensureImage(ctx, entry.Image); err != nil {
		return models.TestExecutionOutput{}, fmt.Errorf("engine: image unavailable: %w", err)
	}

	containerID, err := e.createContainer(ctx, entry, sourceCode, input)
	if err != nil {
		return models.TestExecutionOutput{}, fmt.Errorf("engine: create container: %w", err)
	}

	// Guaranteed cleanup: this runs on every exit path from here on,
	// including panics and the timeout branch below, because it is tied
	// to scope exit rather than to happy-path code (§9).
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.cli.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Warn().Str("container_id", containerID).Err(err).Msg("Failed to remove sandbox container")
		}
	}()

	return e.runContainer(ctx, containerID, timeoutMS)
}

// createContainer builds the per-test sandbox: network disabled, resource
// ceilings from the registry, source/input delivered as base64 env vars,
// and a writable workspace for compilation scratch (§4.D).
func (e *DockerEngine) createContainer(ctx context.Context, entry registry.LanguageEntry, sourceCode string, input []byte) (string, error) {
	env := []string{
		"SOURCE_CODE_B64=" + base64.StdEncoding.EncodeToString([]byte(sourceCode)),
		"INPUT_B64=" + base64.StdEncoding.EncodeToString(input),
	}

	memBytes := entry.MemoryMiB * units.MiB
	nanoCPUs := int64(entry.CPULimit * 1e9)

	resp, err := e.cli.ContainerCreate(ctx,
		&container.Config{
			Image: entry.Image,
			Env:   env,
			Tty:   false,
		},
		&container.HostConfig{
			NetworkMode: "none",
			Resources: container.Resources{
				Memory:   memBytes,
				NanoCPUs: nanoCPUs,
			},
			AutoRemove: false,
		},
		nil, nil, "",
	)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// runContainer starts the container, waits for completion under the hard
// timeout, and collects its raw output (§4.D "Hard timeout",
// "Exit-code classification").
func (e *DockerEngine) runContainer(ctx context.Context, containerID string, timeoutMS uint64) (models.TestExecutionOutput, error) {
	start := time.Now()

	if err := e.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return models.TestExecutionOutput{}, fmt.Errorf("start container: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
	defer cancel()

	statusCh, errCh := e.cli.ContainerWait(timeoutCtx, containerID, container.WaitConditionNotRunning)

	select {
	case <-timeoutCtx.Done():
		// Hard timeout: kill the container; do not attempt to interrupt
		// the running program cooperatively (§9).
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = e.cli.ContainerKill(killCtx, containerID, "KILL")
		return models.TestExecutionOutput{
			ExecutionTimeMS: time.Since(start).Milliseconds(),
			Stderr:          "timeout: sandbox killed after exceeding per-test time limit",
			TimedOut:        true,
		}, nil

	case err := <-errCh:
		if err != nil {
			return models.TestExecutionOutput{}, fmt.Errorf("wait container: %w", err)
		}
		return e.collectOutput(ctx, containerID, 0, start)

	case status := <-statusCh:
		return e.collectOutput(ctx, containerID, status.StatusCode, start)
	}
}

// collectOutput reads the container's stdout/stderr streams and classifies
// its exit code (§4.D "Exit-code classification"). stderr is always
// preserved; non-zero exit codes are annotated but the raw stream is never
// discarded.
func (e *DockerEngine) collectOutput(ctx context.Context, containerID string, exitCode int64, start time.Time) (models.TestExecutionOutput, error) {
	out := models.TestExecutionOutput{
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}

	logCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rc, err := e.cli.ContainerLogs(logCtx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return models.TestExecutionOutput{}, fmt.Errorf("container logs: %w", err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil && err != io.EOF {
		e.logger.Warn().Str("container_id", containerID).Err(err).Msg("Failed to demultiplex container log stream")
	}
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()

	switch exitCode {
	case 0:
		// No error.
	case 137:
		out.RuntimeError = true
		out.Stderr += "\n[optimus] exit 137: OOM/memory limit"
	case 139:
		out.RuntimeError = true
		out.Stderr += "\n[optimus] exit 139: segmentation fault"
	default:
		out.RuntimeError = true
		out.Stderr += fmt.Sprintf("\n[optimus] exit %d", exitCode)
	}

	return out, nil
}
