package security

import (
	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/observability"
)

// Manager bundles CORS handling, response security headers and
// request screening behind one facade. Concerns that are absent or
// disabled in the configuration are left nil and their operations
// become no-ops.
type Manager struct {
	cors     *corsPolicy
	headers  *headerSet
	screener *screener
	logger   observability.Logger
	metrics  *Metrics
}

// NewManager builds a security manager from configuration. Origin and
// user-agent patterns are compiled here; a malformed pattern returns
// an error.
func NewManager(cfg *config.SecurityConfig, logger observability.Logger, metrics *Metrics) (*Manager, error) {
	if cfg == nil {
		cfg = &config.SecurityConfig{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	m := &Manager{
		logger:  logger,
		metrics: metrics,
	}

	if cors := cfg.CORS; cors != nil && cors.Enabled {
		policy, err := newCORSPolicy(cors)
		if err != nil {
			return nil, err
		}
		m.cors = policy
	}
	if hdrs := cfg.Headers; hdrs != nil && hdrs.Enabled {
		m.headers = newHeaderSet(hdrs)
	}
	if scr := cfg.Screening; scr != nil && scr.Enabled {
		screener, err := newScreener(scr)
		if err != nil {
			return nil, err
		}
		m.screener = screener
	}

	return m, nil
}
