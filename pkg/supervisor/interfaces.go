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

import "context"

// Process is one running renderer instance.
type Process interface {
	// Wait blocks until the process exits and returns its exit code.
	// A negative code means the process was killed by a signal; Wait
	// maps signal n to -n.
	Wait() (int, error)
	Kill() error
	Pid() int
}

// Launcher starts renderer processes.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context) (Process, error)

func (f LauncherFunc) Launch(ctx context.Context) (Process, error) {
	return f(ctx)
}
