// Package gradle runs a staged Android project through its gradlew wrapper
// and drives the attached device over adb.
package gradle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"anvil/internal/builder"
	"anvil/internal/logger"
	"anvil/internal/tracer"
	"anvil/model"
)

const (
	buildSuccessNeedle = "BUILD SUCCESSFUL"
	testFailureNeedle  = "FAILURES!!!"
	instrumentRunner   = "androidx.test.runner.AndroidJUnitRunner"
)

// Runner builds the app and test APKs, installs them, runs the
// instrumentation suite, and pulls the screenshot the suite leaves on the
// device as the success artifact.
type Runner struct {
	// ADB is the adb binary to invoke.
	ADB string
	// DeviceArtifact is the on-device path of the screenshot the
	// instrumentation suite writes on success.
	DeviceArtifact string
}

func NewRunner() *Runner {
	return &Runner{ADB: "adb", DeviceArtifact: "/sdcard/Pictures/screenshot.png"}
}

func (r *Runner) Run(ctx context.Context, project builder.Project, dir string) (*builder.Result, error) {
	ctx, span := tracer.GetTracer().Start(ctx, "gradle.Run")
	defer span.End()

	for _, task := range []string{"installDebug", "installDebugTest"} {
		out, err := r.gradle(ctx, dir, task)
		if err != nil {
			tracer.RecordSpanError(span, err)
			return nil, err
		}
		if !strings.Contains(out, buildSuccessNeedle) {
			logger.Log.Info().Str("project", project.Name).Str("task", task).Msg("gradle build failed")
			return &builder.Result{Diagnostic: out, Detail: model.DetailBuildFailed}, nil
		}
	}

	out, err := r.instrument(ctx, project)
	if err != nil {
		tracer.RecordSpanError(span, err)
		return nil, err
	}
	if strings.Contains(out, testFailureNeedle) {
		logger.Log.Info().Str("project", project.Name).Msg("instrumentation tests failed")
		return &builder.Result{Diagnostic: out, Detail: model.DetailRunFailed}, nil
	}

	artifact, err := r.pull(ctx, dir)
	if err != nil {
		tracer.RecordSpanError(span, err)
		return nil, err
	}
	return &builder.Result{Artifact: artifact, Detail: model.DetailSucceeded}, nil
}

// gradle invokes the project's own wrapper so the toolchain version is the
// project's choice, not the worker's. A nonzero exit with output is a build
// failure the caller reports; the needle check above catches it because the
// success marker is then absent.
func (r *Runner) gradle(ctx context.Context, dir, task string) (string, error) {
	cmd := exec.CommandContext(ctx, "./gradlew", task)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), nil
		}
		return "", fmt.Errorf("unable to run gradlew %s: %w", task, err)
	}
	return string(out), nil
}

// instrument runs the project's test class on the device. am instrument
// exits zero even when assertions fail; failures only show up as the
// FAILURES!!! marker in its output.
func (r *Runner) instrument(ctx context.Context, project builder.Project) (string, error) {
	out, err := r.adb(ctx,
		"shell", "am", "instrument", "-w",
		"-e", "class", project.TestClass,
		project.TestPackage+"/"+instrumentRunner,
	)
	if err != nil {
		return "", fmt.Errorf("unable to run instrumentation for %s: %w", project.Name, err)
	}
	return out, nil
}

func (r *Runner) pull(ctx context.Context, dir string) ([]byte, error) {
	local := filepath.Join(dir, "artifact.png")
	if _, err := r.adb(ctx, "pull", r.DeviceArtifact, local); err != nil {
		return nil, fmt.Errorf("unable to pull %s: %w", r.DeviceArtifact, err)
	}
	return os.ReadFile(local)
}

func (r *Runner) adb(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.ADB, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", r.ADB, args[0], err, out)
	}
	return string(out), nil
}
