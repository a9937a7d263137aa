package zfs

import (
	"errors"
	"slices"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSHCommand(t *testing.T) {
	tests := []struct {
		name string
		opts ConnectionOptions
		want []string
	}{
		{
			name: "localhost runs directly",
			opts: ConnectionOptions{Host: "localhost"},
			want: nil,
		},
		{
			name: "default host runs directly",
			opts: ConnectionOptions{},
			want: nil,
		},
		{
			name: "loopback runs directly",
			opts: ConnectionOptions{Host: "127.0.0.1"},
			want: nil,
		},
		{
			name: "remote host",
			opts: ConnectionOptions{Host: "nas"},
			want: []string{"ssh", "-o", "BatchMode=yes", "-a", "-x", "nas"},
		},
		{
			name: "all options",
			opts: ConnectionOptions{
				Host:           "root@nas",
				Trust:          true,
				SSHCipher:      "aes128-ctr",
				IdentityFile:   "/root/.ssh/id_ed25519",
				KnownHostsFile: "/dev/null",
			},
			want: []string{
				"ssh", "-o", "BatchMode=yes", "-a", "-x",
				"-o", "CheckHostIP=no", "-o", "StrictHostKeyChecking=no",
				"-c", "aes128-ctr",
				"-i", "/root/.ssh/id_ed25519",
				"-o", "UserKnownHostsFile=/dev/null",
				"root@nas",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := NewConnection(tt.opts)
			if got := conn.Command(); !slices.Equal(got, tt.want) {
				t.Errorf("Command() = %v, want %v", got, tt.want)
			}
		})
	}
}

func counter(conn *Connection, name string) int64 {
	return conn.Metrics().Get(name).(metrics.Counter).Count()
}

func TestLoadPoolSetCaching(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := NewMockRunner(ctrl)
	conn := NewConnection(ConnectionOptions{
		Host:     "nas",
		Runner:   runner,
		ZFSCmd:   []string{"/sbin/zfs"},
		ZPoolCmd: []string{"/sbin/zpool"},
	})

	ssh := []string{"ssh", "-o", "BatchMode=yes", "-a", "-x", "nas"}
	zfsList := slices.Concat(ssh, []string{"/sbin/zfs", "list", "-Hpr", "-o", "name,creation,mountpoint,mounted", "-t", "all"})
	zpoolList := slices.Concat(ssh, []string{"/sbin/zpool", "list", "-Hp", "-o", "name,size,allocated,free,checkpoint,fragmentation,capacity,health"})
	zfsOut := listing("tank\t100\t/tank\tyes", "tank/data\t110\t/tank/data\tyes")
	zpoolOut := listing(zpoolRow("tank"))

	// first load and the forced reload
	runner.EXPECT().Run(zfsList).Return(zfsOut, nil, 0, nil).Times(2)
	runner.EXPECT().Run(zpoolList).Return(zpoolOut, nil, 0, nil).Times(2)

	ps, err := conn.LoadPoolSet(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, ps.Len())
	assert.Same(t, conn, ps.Pools()[0].Connection())

	// same properties, no commands
	again, err := conn.LoadPoolSet(LoadOptions{})
	require.NoError(t, err)
	assert.Same(t, ps, again)

	// forced, identical output: commands run but reconcile is skipped
	forced, err := conn.LoadPoolSet(LoadOptions{Force: true})
	require.NoError(t, err)
	assert.Same(t, ps, forced)

	assert.Equal(t, int64(1), counter(conn, "zfs.load.count"))
	assert.Equal(t, int64(2), counter(conn, "zfs.load.skipped"))
	assert.Equal(t, int64(2), conn.Metrics().Get("zfs.entities").(metrics.Gauge).Value())
	assert.Equal(t, int64(4), conn.Metrics().Get("zfs.command.duration").(metrics.Timer).Count())
}

func TestLoadPoolSetPropertyChange(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := NewMockRunner(ctrl)
	conn := NewConnection(ConnectionOptions{Runner: runner})

	gomock.InOrder(
		runner.EXPECT().Run([]string{"zfs", "list", "-Hpr", "-o", "name,creation,mountpoint,mounted", "-t", "all"}).
			Return(listing("tank\t100\t/tank\tyes"), nil, 0, nil),
		runner.EXPECT().Run(gomock.Any()).Return(listing(zpoolRow("tank")), nil, 0, nil),
		runner.EXPECT().Run([]string{"zfs", "list", "-Hpr", "-o", "name,creation,mountpoint,mounted,used", "-t", "all"}).
			Return(listing("tank\t100\t/tank\tyes\t4096"), nil, 0, nil),
		runner.EXPECT().Run(gomock.Any()).Return(listing(zpoolRow("tank")), nil, 0, nil),
	)

	_, err := conn.LoadPoolSet(LoadOptions{})
	require.NoError(t, err)
	ps, err := conn.LoadPoolSet(LoadOptions{ZFSProps: []string{"used"}})
	require.NoError(t, err)

	tank, err := ps.GetPool("tank")
	require.NoError(t, err)
	assert.True(t, tank.HasProperty("used"))
	assert.Equal(t, int64(2), counter(conn, "zfs.load.count"))
}

func TestLoadPoolSetCommandFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := NewMockRunner(ctrl)
	conn := NewConnection(ConnectionOptions{Runner: runner})

	runner.EXPECT().Run(gomock.Any()).Return(nil, []byte("cannot open 'tank': no such pool\n"), 1, nil)

	_, err := conn.LoadPoolSet(LoadOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandFailed)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Equal(t, "cannot open 'tank': no such pool\n", cmdErr.Stderr)
	assert.Equal(t, "zfs", cmdErr.Argv[0])
	assert.Equal(t, 0, conn.PoolSet().Len())
}

func TestLoadPoolSetStartFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := NewMockRunner(ctrl)
	conn := NewConnection(ConnectionOptions{Runner: runner})

	startErr := errors.New("exec: \"zfs\": executable file not found in $PATH")
	runner.EXPECT().Run(gomock.Any()).Return(nil, nil, -1, startErr)

	_, err := conn.LoadPoolSet(LoadOptions{})
	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.ErrorIs(t, err, startErr)
}

func TestLoadPoolSetStructuralFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	runner := NewMockRunner(ctrl)
	conn := NewConnection(ConnectionOptions{Runner: runner})

	runner.EXPECT().Run(gomock.Any()).Return(listing("tank\t100\t/tank\tyes"), nil, 0, nil)
	runner.EXPECT().Run(gomock.Any()).Return(listing(zpoolRow("other")), nil, 0, nil)

	_, err := conn.LoadPoolSet(LoadOptions{})
	assert.ErrorIs(t, err, ErrStructural)
	assert.Equal(t, int64(0), counter(conn, "zfs.load.count"))
}

func TestVersion(t *testing.T) {
	conn := NewConnection(ConnectionOptions{Runner: FixtureRunner{Dir: fixtureDir()}})

	userland, kernel, err := conn.Version()
	require.NoError(t, err)
	assert.Equal(t, "zfs-2.2.2-1", userland)
	assert.Equal(t, "zfs-kmod-2.2.2-1", kernel)
}

func TestFixtureFor(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want string
	}{
		{name: "zfs list", argv: []string{"zfs", "list", "-Hpr"}, want: FixtureZFSList},
		{name: "zpool list", argv: []string{"zpool", "list", "-Hp"}, want: FixtureZPoolList},
		{name: "zfs diff", argv: []string{"zfs", "diff", "-FHt", "tank@a"}, want: FixtureZFSDiff},
		{name: "zfs version", argv: []string{"zfs", "version", "-j"}, want: FixtureVersion},
		{name: "chroot prefix", argv: []string{"chroot", "/host", "/usr/local/sbin/zfs", "list"}, want: FixtureZFSList},
		{name: "ssh prefix", argv: []string{"ssh", "-a", "nas", "zpool", "list"}, want: FixtureZPoolList},
		{name: "unknown subcommand", argv: []string{"zfs", "destroy", "tank@a"}, want: ""},
		{name: "empty", argv: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fixtureFor(tt.argv); got != tt.want {
				t.Errorf("fixtureFor(%v) = %q, want %q", tt.argv, got, tt.want)
			}
		})
	}
}

func TestFixtureRunnerMissing(t *testing.T) {
	r := FixtureRunner{Dir: t.TempDir()}

	_, stderr, code, err := r.Run([]string{"zfs", "list"})
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, string(stderr), FixtureZFSList)

	_, _, code, err = r.Run([]string{"zfs", "destroy", "tank"})
	require.NoError(t, err)
	assert.Equal(t, 1, code)
}

func TestExecRunner(t *testing.T) {
	stdout, _, code, err := ExecRunner{}.Run([]string{"sh", "-c", "echo out; echo err >&2; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "out\n", string(stdout))

	_, _, _, err = ExecRunner{}.Run([]string{"/nonexistent/zfs-binary"})
	assert.Error(t, err)

	_, _, _, err = ExecRunner{}.Run(nil)
	assert.Error(t, err)
}
