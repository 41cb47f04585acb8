// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-threshold-kms.
//
// go-threshold-kms is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"fmt"

	"github.com/jeremyhahn/go-threshold-kms/internal/config"
	"github.com/jeremyhahn/go-threshold-kms/pkg/audit"
	"github.com/jeremyhahn/go-threshold-kms/pkg/crypto/wrapping"
	"github.com/jeremyhahn/go-threshold-kms/pkg/kms"
	"github.com/jeremyhahn/go-threshold-kms/pkg/logging"
	"github.com/jeremyhahn/go-threshold-kms/pkg/policy"
	"github.com/jeremyhahn/go-threshold-kms/pkg/storage/memory"
	"github.com/jeremyhahn/go-threshold-kms/pkg/storage/sqlite"
)

// app wires the configured storage backend, wrapping cipher, and
// services together for one command invocation.
type app struct {
	cfg       *config.Config
	keys      *kms.Service
	policies  *policy.Manager
	evaluator *policy.Evaluator
	recorder  audit.Recorder
	closer    func() error
}

// newApp loads configuration and constructs the service graph.
func newApp() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Debug || verbose)

	wrapper, err := buildWrapper(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, closer: func() error { return nil }}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		keyStore := memory.NewKeyStore()
		policyStore := memory.NewPolicyStore()
		a.recorder = audit.NewMemoryRecorder()
		a.keys = kms.NewService(keyStore, wrapper, kms.WithLogger(logger))
		a.policies = policy.NewManager(policyStore)
		a.evaluator = policy.NewEvaluator(policyStore, a.recorder, policy.WithLogger(logger))
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		a.closer = store.Close
		a.recorder = store
		a.keys = kms.NewService(store, wrapper, kms.WithLogger(logger))
		a.policies = policy.NewManager(store)
		a.evaluator = policy.NewEvaluator(store, store, policy.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	printVerbose("using %s storage, %s wrapping", cfg.Storage.Driver, cfg.Wrapping.Cipher)
	return a, nil
}

func (a *app) Close() error {
	return a.closer()
}

func buildWrapper(cfg *config.Config) (wrapping.Service, error) {
	if cfg.Wrapping.MasterKey == "" {
		return nil, fmt.Errorf("no master key configured; set TKMS_WRAPPING_MASTER_KEY or wrapping.master_key")
	}
	masterKey, err := cfg.DecodeMasterKey()
	if err != nil {
		return nil, err
	}
	switch cfg.Wrapping.Cipher {
	case config.CipherAESGCM:
		return wrapping.NewAESGCM(masterKey)
	case config.CipherXChaCha20:
		return wrapping.NewXChaCha20Poly1305(masterKey)
	default:
		return nil, fmt.Errorf("unknown wrapping cipher %q", cfg.Wrapping.Cipher)
	}
}
