package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/fpemud-os/gstage4/internal/chroot"
	"github.com/fpemud-os/gstage4/internal/config"
)

// installController writes a shell script at the builder's controller path.
// Scripts log next to themselves because the controller env is scrubbed.
func installController(t *testing.T, b *Builder, body string) {
	t.Helper()
	mustMkdirAll(t, filepath.Dir(b.paths.ControllerFile))
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(b.paths.ControllerFile, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func controllerCalls(t *testing.T, b *Builder) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(filepath.Dir(b.paths.ControllerFile), "calls.log"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func clearControllerCalls(t *testing.T, b *Builder) {
	t.Helper()
	err := os.Remove(filepath.Join(filepath.Dir(b.paths.ControllerFile), "calls.log"))
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
}

func TestRunLocalSkipsWithoutScript(t *testing.T) {
	b := newTestBuilder(t, testProfile(t))
	res, err := b.runLocal(context.Background())
	if err != nil {
		t.Fatalf("runLocal: %v", err)
	}
	if !res.Skipped || res.Reason != "no controller script" {
		t.Errorf("result = %+v, want a skip", res)
	}
}

func TestRunLocalInvokesScript(t *testing.T) {
	b := newTestBuilder(t, testProfile(t))
	installController(t, b, `echo "$* target=$clst_target" >> "$(dirname "$0")/calls.log"`)
	ctx := context.Background()

	if _, err := b.setupEnvironment(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := b.runLocal(ctx); err != nil {
		t.Fatalf("runLocal: %v", err)
	}

	want := []string{"run target=stage4"}
	if got := controllerCalls(t, b); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestBuildPackagesPassesList(t *testing.T) {
	p := testProfile(t)
	p.Packages = []string{"app-editors/vim", "net-misc/curl"}
	b := newTestBuilder(t, p)
	installController(t, b, `echo "$*" >> "$(dirname "$0")/calls.log"`)
	ctx := context.Background()

	if _, err := b.setupEnvironment(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := b.buildPackages(ctx); err != nil {
		t.Fatalf("buildPackages: %v", err)
	}

	want := []string{"build_packages app-editors/vim net-misc/curl"}
	if got := controllerCalls(t, b); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestBuildKernelOrderAndResume(t *testing.T) {
	p := testProfile(t, config.OptAutoResume)
	p.Kernels = map[string]config.Kernel{
		"beta":  {Sources: "sys-kernel/vanilla-sources"},
		"alpha": {Sources: "sys-kernel/gentoo-sources", ExtraVersion: "r1"},
	}
	b := newTestBuilder(t, p)
	installController(t, b, `echo "$* kext=$clst_kextraversion" >> "$(dirname "$0")/calls.log"`)
	ctx := context.Background()

	if _, err := b.setupEnvironment(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := b.buildKernel(ctx); err != nil {
		t.Fatalf("buildKernel: %v", err)
	}

	want := []string{
		"pre-kmerge kext=",
		"kernel alpha kext=r1",
		"kernel beta kext=",
		"post-kmerge kext=",
	}
	if got := controllerCalls(t, b); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	for _, point := range []string{"build_kernel_alpha", "build_kernel_beta"} {
		if !b.store.IsSatisfied(point) {
			t.Errorf("%s not recorded", point)
		}
	}

	// A resumed run re-enters the stage but skips the built kernels.
	clearControllerCalls(t, b)
	if _, err := b.buildKernel(ctx); err != nil {
		t.Fatalf("resumed buildKernel: %v", err)
	}
	want = []string{"pre-kmerge kext=", "post-kmerge kext="}
	if got := controllerCalls(t, b); !reflect.DeepEqual(got, want) {
		t.Errorf("resumed calls = %v, want %v", got, want)
	}
}

func TestControllerFailureSurfaces(t *testing.T) {
	p := testProfile(t)
	p.Packages = []string{"app-editors/vim"}
	b := newTestBuilder(t, p)
	installController(t, b, "exit 3")
	ctx := context.Background()

	if _, err := b.setupEnvironment(ctx); err != nil {
		t.Fatal(err)
	}
	_, err := b.buildPackages(ctx)
	if !errors.Is(err, chroot.ErrScriptFailed) {
		t.Fatalf("err = %v, want ErrScriptFailed", err)
	}
}

func TestCleanStage(t *testing.T) {
	p := testProfile(t)
	p.PortageOverlay = []string{"/somewhere"}
	b := newTestBuilder(t, p)

	mustWriteFile(t, b.chrootPath("etc/resolv.conf"), "nameserver 127.0.0.1\n")
	mustWriteFile(t, b.chrootPath("etc/hosts"), "build hosts\n")
	mustWriteFile(t, b.chrootPath("etc/hosts.gstage4"), "original hosts\n")
	mustWriteFile(t, b.chrootPath("tmp/litter"), "x")
	mustWriteFile(t, b.chrootPath("var/tmp/portage/litter"), "x")
	mustWriteFile(t, b.chrootPath("root/.bash_history"), "x")
	mustWriteFile(t, b.chrootPath(localOverlay, "app-misc/first/first-1.ebuild"), "x")
	mustWriteFile(t, b.chrootPath("etc/portage/make.conf"), b.makeConf(true))

	if _, err := b.cleanStage(context.Background()); err != nil {
		t.Fatalf("cleanStage: %v", err)
	}

	for _, gone := range []string{
		"etc/resolv.conf",
		"tmp/litter",
		"var/tmp/portage",
		"root/.bash_history",
		"etc/hosts.gstage4",
	} {
		if exists(b.chrootPath(gone)) {
			t.Errorf("%s survived clean", gone)
		}
	}
	if exists(b.chrootPath(localOverlay)) {
		t.Error("local overlay survived clean")
	}
	if got := readFile(t, b.chrootPath("etc/hosts")); got != "original hosts\n" {
		t.Errorf("hosts = %q, want the stashed original", got)
	}
	conf := readFile(t, b.chrootPath("etc/portage/make.conf"))
	if strings.Contains(conf, "PORTDIR_OVERLAY") {
		t.Error("make.conf keeps the setup-only overlay entry")
	}
	if !strings.Contains(conf, "COMMON_FLAGS") {
		t.Error("make.conf lost its flags")
	}
}

func TestCleanStageStickyConfig(t *testing.T) {
	p := testProfile(t, config.OptStickyConfig)
	p.PortageOverlay = []string{"/somewhere"}
	b := newTestBuilder(t, p)

	mustWriteFile(t, b.chrootPath(localOverlay, "app-misc/first/first-1.ebuild"), "x")
	mustWriteFile(t, b.chrootPath("etc/portage/make.conf"), b.makeConf(true))

	if _, err := b.cleanStage(context.Background()); err != nil {
		t.Fatalf("cleanStage: %v", err)
	}
	if !exists(b.chrootPath(localOverlay, "app-misc/first/first-1.ebuild")) {
		t.Error("sticky-config run removed the local overlay")
	}
	if !strings.Contains(readFile(t, b.chrootPath("etc/portage/make.conf")), "PORTDIR_OVERLAY") {
		t.Error("sticky-config run rewrote make.conf")
	}
}

func TestCleanStageDropsInterpreterWithoutStash(t *testing.T) {
	p := testProfile(t)
	interp := filepath.Join(p.ShareDir, "qemu-aarch64")
	p.Interpreter = interp
	b := newTestBuilder(t, p)

	mustWriteFile(t, b.chrootPath(interp), "#!ELF fake\n")
	if _, err := b.cleanStage(context.Background()); err != nil {
		t.Fatalf("cleanStage: %v", err)
	}
	if exists(b.chrootPath(interp)) {
		t.Error("interpreter copy survived clean")
	}
}
