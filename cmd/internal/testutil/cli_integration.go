//go:build integration

// Package testutil runs lordn binaries in containers next to a MySQL server.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/go-sql-driver/mysql"
)

const (
	mysqlImage    = "mysql:8.0.36"
	mysqlDatabase = "lordn"
	mysqlUser     = "root"
	mysqlPassword = "secret"
	mysqlAlias    = "mysql"
	mysqlPort     = nat.Port("3306/tcp")

	cliImage = "alpine:3.20"
	cliPath  = "/usr/local/bin/lordn"

	startupTimeout = 2 * time.Minute
	exitTimeout    = 2 * time.Minute
)

// MySQLContainer is a MySQL server reachable from the host via DB and from
// CLI containers on Network via DSN.
type MySQLContainer struct {
	Container testcontainers.Container
	Network   *testcontainers.DockerNetwork
	DB        *sql.DB
	DSN       string
}

// StartMySQLContainer starts MySQL on a fresh network. The test is skipped when
// Docker is unavailable.
func StartMySQLContainer(t *testing.T, ctx context.Context) MySQLContainer {
	t.Helper()

	net, err := network.New(ctx)
	if err != nil {
		t.Skipf("create network: %v", err)
	}
	t.Cleanup(func() { _ = net.Remove(ctx) })

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mysqlImage,
			ExposedPorts: []string{string(mysqlPort)},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": mysqlPassword,
				"MYSQL_DATABASE":      mysqlDatabase,
			},
			Networks:       []string{net.Name},
			NetworkAliases: map[string][]string{net.Name: {mysqlAlias}},
			WaitingFor: wait.ForSQL(mysqlPort, "mysql", func(host string, port nat.Port) string {
				return dsn(host, port.Port())
			}).WithStartupTimeout(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("start mysql container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, mysqlPort)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}

	db, err := sql.Open("mysql", dsn(host, mapped.Port()))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return MySQLContainer{
		Container: container,
		Network:   net,
		DB:        db,
		DSN:       dsn(mysqlAlias, mysqlPort.Port()),
	}
}

func dsn(host, port string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&multiStatements=true",
		mysqlUser, mysqlPassword, host, port, mysqlDatabase)
}

// BuildBinary compiles pkg as a static linux binary in a temp dir.
func BuildBinary(t *testing.T, pkg string) string {
	t.Helper()

	bin := filepath.Join(t.TempDir(), "lordn")
	cmd := exec.Command("go", "build", "-trimpath", "-o", bin, pkg)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOOS=linux", "GOARCH="+runtime.GOARCH)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build %s: %v\n%s", pkg, err, out)
	}

	return bin
}

// CLIRun describes one invocation of a CLI binary inside a container.
type CLIRun struct {
	Network string
	Binary  string
	Args    []string
	Env     map[string]string
}

func (r CLIRun) String() string {
	return strings.Join(append([]string{filepath.Base(cliPath)}, r.Args...), " ")
}

// RunCLIContainer runs the binary to completion and returns its exit code and
// combined output.
func RunCLIContainer(t *testing.T, ctx context.Context, run CLIRun) (int, string) {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      cliImage,
			Entrypoint: []string{cliPath},
			Cmd:        run.Args,
			Env:        run.Env,
			Networks:   []string{run.Network},
			Files: []testcontainers.ContainerFile{{
				HostFilePath:      run.Binary,
				ContainerFilePath: cliPath,
				FileMode:          0o755,
			}},
			WaitingFor: wait.ForExit().WithExitTimeout(exitTimeout),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start %s: %v", run, err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	logs := containerLogs(t, ctx, container)
	state, err := container.State(ctx)
	if err != nil {
		t.Fatalf("state of %s: %v", run, err)
	}

	return state.ExitCode, logs
}

func containerLogs(t *testing.T, ctx context.Context, container testcontainers.Container) string {
	t.Helper()

	rc, err := container.Logs(ctx)
	if err != nil {
		t.Fatalf("container logs: %v", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("container logs: %v", err)
	}

	return string(raw)
}
