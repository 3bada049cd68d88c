/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

var errNoCommand = errors.New("no renderer command configured")

// ExecLauncher launches the renderer as a child process.
type ExecLauncher struct {
	// Command is the renderer binary plus arguments.
	Command []string
	// Env entries are appended to the inherited environment.
	Env []string
}

// Launch starts the renderer. The child gets its own process group so a
// kill takes its helpers down with it.
func (l *ExecLauncher) Launch(ctx context.Context) (Process, error) {
	if len(l.Command) == 0 {
		return nil, errNoCommand
	}

	cmd := exec.CommandContext(ctx, l.Command[0], l.Command[1:]...)
	cmd.Env = append(cmd.Environ(), l.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start renderer: %w", err)
	}

	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until exit. Signal-killed processes report -signal so the
// caller can tell an OOM SIGKILL from an ordinary nonzero exit.
func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()

	state := p.cmd.ProcessState
	if state == nil {
		return -1, err
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal()), nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return state.ExitCode(), nil
	}

	return state.ExitCode(), err
}

// Kill signals the whole process group, falling back to the process
// itself when no group exists.
func (p *execProcess) Kill() error {
	pid := p.cmd.Process.Pid

	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	}

	return p.cmd.Process.Kill()
}
