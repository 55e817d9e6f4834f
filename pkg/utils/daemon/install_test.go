package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeSystemctl(t *testing.T, fail string) *[]string {
	t.Helper()
	var calls []string
	oldPath, oldRun := unitPath, runCommand
	unitPath = filepath.Join(t.TempDir(), "system", "markercam.service")
	runCommand = func(name string, args ...string) error {
		c := name + " " + strings.Join(args, " ")
		calls = append(calls, c)
		if fail != "" && strings.Contains(c, fail) {
			return errors.New("boom")
		}
		return nil
	}
	t.Cleanup(func() { unitPath, runCommand = oldPath, oldRun })
	return &calls
}

func TestUnit(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no args", want: "ExecStart=/usr/bin/markercam daemon\n"},
		{name: "plain", args: []string{"--config", "/etc/markercam.yaml"}, want: "ExecStart=/usr/bin/markercam daemon --config /etc/markercam.yaml\n"},
		{name: "quoted", args: []string{"--config", "/srv/my cam.yaml"}, want: `ExecStart=/usr/bin/markercam daemon --config "/srv/my cam.yaml"` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unit("/usr/bin/markercam", tt.args)
			if !strings.Contains(got, tt.want) {
				t.Errorf("Unit() = %q, want line %q", got, tt.want)
			}
		})
	}
}

func TestInstallUninstall(t *testing.T) {
	calls := fakeSystemctl(t, "")

	if err := install("/usr/bin/markercam", []string{"--transport", "udp://10.0.0.2:5000"}); err != nil {
		t.Fatalf("install() error = %v", err)
	}
	b, err := os.ReadFile(unitPath)
	if err != nil {
		t.Fatalf("unit not written: %v", err)
	}
	if !strings.Contains(string(b), "daemon --transport udp://10.0.0.2:5000") {
		t.Errorf("unit = %q", b)
	}

	if err := Uninstall(); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if _, err := os.Stat(unitPath); !os.IsNotExist(err) {
		t.Errorf("unit still present: %v", err)
	}

	want := []string{
		"systemctl daemon-reload",
		"systemctl enable --now markercam.service",
		"systemctl disable --now markercam.service",
		"systemctl daemon-reload",
	}
	if strings.Join(*calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %v, want %v", *calls, want)
	}
}

func TestInstallStartFailure(t *testing.T) {
	fakeSystemctl(t, "enable")
	if err := install("/usr/bin/markercam", nil); err == nil {
		t.Errorf("install() succeeded, want the systemctl error")
	}
}

func TestUninstallNotInstalled(t *testing.T) {
	fakeSystemctl(t, "disable")
	if err := Uninstall(); err != nil {
		t.Errorf("Uninstall() error = %v, want nil when nothing is installed", err)
	}
}
