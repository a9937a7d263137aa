package zfs

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/zeebo/xxh3"
	"k8s.io/klog/v2"
)

// ConnectionOptions describe where and how zfs and zpool are run
type ConnectionOptions struct {
	// Host is "localhost" (the default) or an ssh destination
	Host string
	// Trust disables ssh host key checking
	Trust          bool
	SSHCipher      string
	IdentityFile   string
	KnownHostsFile string

	// ZFSCmd and ZPoolCmd are the command prefixes, default "zfs" and "zpool"
	ZFSCmd   []string
	ZPoolCmd []string

	// Runner defaults to ExecRunner
	Runner Runner
	// Registry defaults to a new registry per connection
	Registry metrics.Registry
}

type connectionMetrics struct {
	loads           metrics.Counter
	loadsSkipped    metrics.Counter
	commandDuration metrics.Timer
	entities        metrics.Gauge
	diffFailures    metrics.Counter
}

func newConnectionMetrics(r metrics.Registry) connectionMetrics {
	return connectionMetrics{
		loads:           metrics.GetOrRegisterCounter("zfs.load.count", r),
		loadsSkipped:    metrics.GetOrRegisterCounter("zfs.load.skipped", r),
		commandDuration: metrics.GetOrRegisterTimer("zfs.command.duration", r),
		entities:        metrics.GetOrRegisterGauge("zfs.entities", r),
		diffFailures:    metrics.GetOrRegisterCounter("zfs.diff.failures", r),
	}
}

// Connection runs zfs and zpool for one host and owns the PoolSet built from them
type Connection struct {
	host     string
	command  []string
	zfsCmd   []string
	zpoolCmd []string
	runner   Runner
	registry metrics.Registry
	metrics  connectionMetrics

	mu          sync.Mutex
	poolset     *PoolSet
	loaded      bool
	lastProps   string
	fingerprint xxh3.Uint128
}

// NewConnection creates a connection. Nothing is run until LoadPoolSet.
func NewConnection(opts ConnectionOptions) *Connection {
	host := opts.Host
	if host == "" {
		host = "localhost"
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	registry := opts.Registry
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	zfsCmd := opts.ZFSCmd
	if len(zfsCmd) == 0 {
		zfsCmd = []string{"zfs"}
	}
	zpoolCmd := opts.ZPoolCmd
	if len(zpoolCmd) == 0 {
		zpoolCmd = []string{"zpool"}
	}

	c := &Connection{
		host:     host,
		command:  sshCommand(host, opts),
		zfsCmd:   slices.Clone(zfsCmd),
		zpoolCmd: slices.Clone(zpoolCmd),
		runner:   runner,
		registry: registry,
		metrics:  newConnectionMetrics(registry),
	}
	c.poolset = newPoolSet(c)
	return c
}

// sshCommand returns the ssh prefix for remote hosts, nil for local ones
func sshCommand(host string, opts ConnectionOptions) []string {
	if host == "localhost" || host == "127.0.0.1" {
		return nil
	}
	cmd := []string{"ssh", "-o", "BatchMode=yes", "-a", "-x"}
	if opts.Trust {
		cmd = append(cmd, "-o", "CheckHostIP=no", "-o", "StrictHostKeyChecking=no")
	}
	if opts.SSHCipher != "" {
		cmd = append(cmd, "-c", opts.SSHCipher)
	}
	if opts.IdentityFile != "" {
		cmd = append(cmd, "-i", opts.IdentityFile)
	}
	if opts.KnownHostsFile != "" {
		cmd = append(cmd, "-o", "UserKnownHostsFile="+opts.KnownHostsFile)
	}
	return append(cmd, host)
}

// Host returns the host commands run on
func (c *Connection) Host() string {
	return c.host
}

// Command returns the prefix put in front of every zfs and zpool invocation
func (c *Connection) Command() []string {
	return slices.Clone(c.command)
}

// Metrics returns the registry the connection reports to
func (c *Connection) Metrics() metrics.Registry {
	return c.registry
}

// PoolSet returns the tree built by the last load
func (c *Connection) PoolSet() *PoolSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poolset
}

func (c *Connection) argv(tool []string, args ...string) []string {
	return slices.Concat(c.command, tool, args)
}

// run executes argv and turns anything but a clean exit into a *CommandError
func (c *Connection) run(argv []string) ([]byte, error) {
	start := time.Now()
	stdout, stderr, exitCode, err := c.runner.Run(argv)
	c.metrics.commandDuration.UpdateSince(start)
	if err != nil {
		return nil, commandError(argv, stderr, exitCode, err)
	}
	if exitCode != 0 {
		return nil, commandError(argv, stderr, exitCode, nil)
	}
	return stdout, nil
}

func (c *Connection) runZFS(args ...string) ([]byte, error) {
	return c.run(c.argv(c.zfsCmd, args...))
}

func (c *Connection) runZPool(args ...string) ([]byte, error) {
	return c.run(c.argv(c.zpoolCmd, args...))
}

// LoadPoolSet lists every pool, dataset and snapshot and reconciles the
// connection's PoolSet with the result. The list commands are skipped when the
// requested properties did not change since the last load, unless opts.Force is set.
func (c *Connection) LoadPoolSet(opts LoadOptions) (*PoolSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	zfsProps, zpoolProps, _ := opts.Props()
	propsKey := strings.Join(zfsProps, ",") + "|" + strings.Join(zpoolProps, ",")
	if c.loaded && !opts.Force && propsKey == c.lastProps {
		klog.V(1).Infof("Properties unchanged since last load of %s, reusing poolset", c.host)
		c.metrics.loadsSkipped.Inc(1)
		return c.poolset, nil
	}

	zfsOut, err := c.runZFS("list", "-Hpr", "-o", strings.Join(zfsProps, ","), "-t", "all")
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	zpoolOut, err := c.runZPool("list", "-Hp", "-o", strings.Join(zpoolProps, ","))
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}

	fingerprint := listingFingerprint(zfsOut, zpoolOut)
	if c.loaded && propsKey == c.lastProps && fingerprint == c.fingerprint {
		klog.V(1).Infof("Listings of %s unchanged, skipping reconcile", c.host)
		c.metrics.loadsSkipped.Inc(1)
		return c.poolset, nil
	}

	result, err := c.poolset.Load(zfsOut, zpoolOut, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load poolset from %s: %w", c.host, err)
	}

	c.loaded = true
	c.lastProps = propsKey
	c.fingerprint = fingerprint
	c.metrics.loads.Inc(1)
	c.metrics.entities.Update(int64(result.Total))

	return c.poolset, nil
}

func listingFingerprint(zfsOut, zpoolOut []byte) xxh3.Uint128 {
	buf := make([]byte, 0, len(zfsOut)+len(zpoolOut)+1)
	buf = append(buf, zfsOut...)
	buf = append(buf, 0)
	buf = append(buf, zpoolOut...)
	return xxh3.Hash128(buf)
}

// VersionInfo holds ZFS version information
type VersionInfo struct {
	Userland string `json:"userland"`
	Kernel   string `json:"kernel"`
}

// VersionOutput is the complete `zfs version -j` output
type VersionOutput struct {
	ZFSVersion VersionInfo `json:"zfs_version"`
}

// Version retrieves the ZFS userland and kernel versions
func (c *Connection) Version() (string, string, error) {
	output, err := c.runZFS("version", "-j")
	if err != nil {
		return "", "", fmt.Errorf("zfs version command failed: %w", err)
	}

	var versionOutput VersionOutput
	if err := json.Unmarshal(output, &versionOutput); err != nil {
		return "", "", fmt.Errorf("failed to parse version JSON: %w", err)
	}

	return versionOutput.ZFSVersion.Userland, versionOutput.ZFSVersion.Kernel, nil
}
