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

package rotation

import "context"

// TabController is the renderer-control collaborator. The remote-control
// protocol only exposes next/previous/direct-slot/refresh primitives;
// the engine composes everything else out of these.
type TabController interface {
	NextTab(ctx context.Context) error
	PrevTab(ctx context.Context) error
	// GotoTab addresses slots 1 through 9 directly.
	GotoTab(ctx context.Context, slot int) error
	Refresh(ctx context.Context) error
}

const maxDirectSlot = 9
