package runtime

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"

	"stagebox/internal/logging"
	"stagebox/internal/project"
)

const (
	containerName  = "stagebox-runtime"
	workDir        = "/app"
	maxOutputBytes = 2 * 1024 * 1024
)

// DockerBackend runs the shared dev-server runtime as a single long-lived
// container driven over the Docker SDK.
type DockerBackend struct {
	cli         *client.Client
	image       string
	previewPort int
	log         *zap.Logger

	containerID string
}

// NewDockerBackend creates a Docker SDK-backed runtime backend.
func NewDockerBackend(dockerHost, runtimeImage string, previewPort int) (*DockerBackend, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker sdk client init failed: %w", err)
	}
	return &DockerBackend{
		cli:         cli,
		image:       runtimeImage,
		previewPort: previewPort,
		log:         logging.L().With(zap.String("backend", "docker")),
	}, nil
}

func (b *DockerBackend) Name() string { return "docker" }

// Probe checks the isolation capability by pinging the daemon.
func (b *DockerBackend) Probe(ctx context.Context) error {
	if _, err := b.cli.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrIsolationUnavailable, err)
	}
	return nil
}

// Acquire boots the runtime container, adopting an existing one when the
// name is already taken by a previous boot.
func (b *DockerBackend) Acquire(ctx context.Context) (string, bool, error) {
	if err := b.ensureImage(ctx); err != nil {
		return "", false, err
	}

	port := nat.Port(strconv.Itoa(b.previewPort) + "/tcp")
	created, err := b.cli.ContainerCreate(ctx, &container.Config{
		Image:      b.image,
		WorkingDir: workDir,
		Cmd:        []string{"sh", "-c", "mkdir -p " + workDir + " && sleep infinity"},
		Tty:        false,
		ExposedPorts: nat.PortSet{
			port: struct{}{},
		},
	}, &container.HostConfig{
		SecurityOpt: []string{"no-new-privileges:true"},
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(b.previewPort)}},
		},
		Resources: container.Resources{
			Memory:     1024 * 1024 * 1024,
			MemorySwap: 1024 * 1024 * 1024,
			NanoCPUs:   2_000_000_000,
		},
	}, &network.NetworkingConfig{}, nil, containerName)

	if err != nil {
		if !strings.Contains(err.Error(), "already in use") {
			return "", false, fmt.Errorf("docker container create failed: %w", err)
		}
		// Duplicate boot: adopt the existing runtime instead of failing.
		id, adoptErr := b.findExisting(ctx)
		if adoptErr != nil {
			return "", false, fmt.Errorf("%w: %v", ErrDuplicateBoot, adoptErr)
		}
		if startErr := b.cli.ContainerStart(ctx, id, container.StartOptions{}); startErr != nil &&
			!strings.Contains(startErr.Error(), "already started") {
			return "", false, fmt.Errorf("%w: %v", ErrDuplicateBoot, startErr)
		}
		b.containerID = id
		b.log.Info("adopted existing runtime container", zap.String("container_id", id[:12]))
		return id, true, nil
	}

	if err := b.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", false, fmt.Errorf("docker container start failed: %w", err)
	}
	b.containerID = created.ID
	b.log.Info("runtime container started", zap.String("container_id", created.ID[:12]))
	return created.ID, false, nil
}

func (b *DockerBackend) findExisting(ctx context.Context) (string, error) {
	list, err := b.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", containerName)),
	})
	if err != nil {
		return "", err
	}
	for _, c := range list {
		for _, name := range c.Names {
			if strings.TrimPrefix(name, "/") == containerName {
				return c.ID, nil
			}
		}
	}
	return "", fmt.Errorf("runtime container %s not found", containerName)
}

func (b *DockerBackend) ensureImage(ctx context.Context) error {
	_, _, err := b.cli.ImageInspectWithRaw(ctx, b.image)
	if err == nil {
		return nil
	}
	rc, pullErr := b.cli.ImagePull(ctx, b.image, image.PullOptions{})
	if pullErr != nil {
		return fmt.Errorf("pull image %s: %w (inspect err: %v)", b.image, pullErr, err)
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)
	return nil
}

// WriteFiles copies a sanitized file map into the runtime workspace as a
// tar stream.
func (b *DockerBackend) WriteFiles(ctx context.Context, files map[string]string) error {
	buf, err := tarFileTree(files)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMountFailure, err)
	}
	if err := b.cli.CopyToContainer(ctx, b.containerID, workDir, buf, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("%w: %v", ErrMountFailure, err)
	}
	return nil
}

// tarFileTree builds the nested directory tree from the flat file map and
// encodes it as a tar stream, with explicit directory headers ahead of the
// files they contain.
func tarFileTree(files map[string]string) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := writeTreeNode(tw, "", project.BuildTree(files)); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func writeTreeNode(tw *tar.Writer, prefix string, node *project.TreeNode) error {
	names := make([]string, 0, len(node.Children))
	for name := range node.Children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		child := node.Children[name]
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}

		if child.IsDir {
			hdr := &tar.Header{
				Typeflag: tar.TypeDir,
				Name:     path + "/",
				Mode:     0o755,
				ModTime:  time.Now(),
			}
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			if err := writeTreeNode(tw, path, child); err != nil {
				return err
			}
			continue
		}

		hdr := &tar.Header{
			Name:    path,
			Mode:    0o644,
			Size:    int64(len(child.Content)),
			ModTime: time.Now(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write([]byte(child.Content)); err != nil {
			return err
		}
	}
	return nil
}

// Exec runs a command to completion in the workspace with a bounded wait.
func (b *DockerBackend) Exec(ctx context.Context, cmd []string, timeout time.Duration) (ExecResult, error) {
	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	created, err := b.cli.ContainerExecCreate(ctx, b.containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec create failed: %w", err)
	}

	att, err := b.cli.ContainerExecAttach(execCtx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec attach failed: %w", err)
	}
	defer att.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(
			&limitedWriter{w: &stdout, limit: maxOutputBytes},
			&limitedWriter{w: &stderr, limit: maxOutputBytes},
			att.Reader,
		)
		done <- copyErr
	}()

	select {
	case <-execCtx.Done():
		return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 124},
			fmt.Errorf("command did not finish within %s: %w", timeout, execCtx.Err())
	case copyErr := <-done:
		if copyErr != nil && copyErr != io.EOF {
			return ExecResult{}, fmt.Errorf("exec output read failed: %w", copyErr)
		}
	}

	inspect, err := b.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}, fmt.Errorf("exec inspect failed: %w", err)
	}
	return ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// StartDev launches the dev server and streams its combined output. The
// exec runs with a TTY so stdout and stderr interleave as one stream.
func (b *DockerBackend) StartDev(ctx context.Context, cmd []string) (<-chan string, error) {
	created, err := b.cli.ContainerExecCreate(ctx, b.containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartFailure, err)
	}

	att, err := b.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{Tty: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStartFailure, err)
	}

	lines := make(chan string, 128)
	go func() {
		defer close(lines)
		defer att.Close()
		scanner := bufio.NewScanner(att.Reader)
		scanner.Buffer(make([]byte, 64*1024), 256*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines, nil
}

// StopDev kills the dev server process tree inside the container. The
// container itself stays up; only the npm/vite processes holding the
// published port are terminated.
func (b *DockerBackend) StopDev(ctx context.Context) error {
	cmd := []string{"sh", "-c", `pkill -f "npm run dev"; pkill -f vite; true`}
	if _, err := b.Exec(ctx, cmd, 10*time.Second); err != nil {
		return fmt.Errorf("stop dev server: %w", err)
	}
	return nil
}

// PreviewAddr is the published host:port of the dev server.
func (b *DockerBackend) PreviewAddr() string {
	return "127.0.0.1:" + strconv.Itoa(b.previewPort)
}

// Close releases the SDK client. The runtime container is left running;
// there is no teardown path for the shared runtime.
func (b *DockerBackend) Close() error {
	return b.cli.Close()
}

type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.limit <= 0 {
		return lw.w.Write(p)
	}
	if lw.written >= lw.limit {
		return len(p), nil
	}
	remaining := lw.limit - lw.written
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}
