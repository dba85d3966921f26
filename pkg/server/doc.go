// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes admission decisions as an HTTP service.
//
// The service is intentionally small: POST /v1/check evaluates one
// admission request and returns the decision, POST /v1/outcome feeds
// request outcomes back into the behavior scorer, and GET /health
// reports liveness together with the circuit breaker state. When
// metrics are enabled a Prometheus scrape endpoint is mounted as well.
//
// Services that run in the same process as the engine should prefer
// the admission.Middleware adapter over calling this API over the
// network.
package server
