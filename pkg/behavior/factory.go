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

package behavior

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/cerberus/pkg/config"
)

// NewScorerFromConfig creates a Scorer from configuration.
// Uses the shared database pool for SQL backends and the store's Redis
// connection settings when the behavior section does not override them.
//
// Example config:
//
//	databases:
//	  default:
//	    driver: sqlite
//	    database: ./.cerberus/cerberus.db
//
//	behavior:
//	  backend: sql
//	  sql_database: default
//	  decay_half_life: 168h
func NewScorerFromConfig(cfg *config.Config, pool *config.DBPool) (*Scorer, error) {
	store, err := NewProfileStoreFromConfig(cfg, pool)
	if err != nil {
		return nil, err
	}
	return NewScorer(store, ScoreParamsFromConfig(cfg.Behavior)), nil
}

// NewProfileStoreFromConfig creates a ProfileStore from configuration.
func NewProfileStoreFromConfig(cfg *config.Config, pool *config.DBPool) (ProfileStore, error) {
	bc := cfg.Behavior
	if bc == nil {
		return NewMemoryProfileStore(), nil
	}

	switch bc.Backend {
	case config.StoreBackendSQL:
		// DBPool is required for SQL backends
		if pool == nil {
			return nil, fmt.Errorf("DBPool is required for SQL behavior backend")
		}

		dbName := bc.SQLDatabase
		if dbName == "" {
			return nil, fmt.Errorf("behavior.sql_database is required when backend is sql")
		}

		dbCfg, ok := cfg.GetDatabase(dbName)
		if !ok {
			return nil, fmt.Errorf("database %q not found", dbName)
		}

		// Get connection from pool (shares connection with other components)
		db, err := pool.Get(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to get database connection: %w", err)
		}

		store, err := NewSQLProfileStore(db, dbCfg.Dialect())
		if err != nil {
			return nil, fmt.Errorf("failed to create SQL profile store: %w", err)
		}
		return store, nil
	case config.StoreBackendRedis:
		rc := bc.Redis
		if rc == nil && cfg.Store != nil {
			rc = cfg.Store.Redis
		}
		if rc == nil {
			return nil, fmt.Errorf("behavior.redis or store.redis is required when backend is redis")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		store, err := NewRedisProfileStore(client, rc.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis profile store: %w", err)
		}
		return store, nil
	case config.StoreBackendMemory, "":
		return NewMemoryProfileStore(), nil
	default:
		return nil, fmt.Errorf("unsupported behavior backend: %s", bc.Backend)
	}
}

// ScoreParamsFromConfig converts the config section into scoring policy.
func ScoreParamsFromConfig(bc *config.BehaviorConfig) ScoreParams {
	params := ScoreParams{}
	if bc != nil {
		params.ErrorPenalty = bc.ErrorPenalty
		params.RecoveryCredit = bc.RecoveryCredit
		params.DecayHalfLife = bc.DecayHalfLife
	}
	params.SetDefaults()
	return params
}
