// Package config decodes the router's full knob surface from YAML, the
// way internal/config/providers.go decodes provider operations config in
// the teacher repo: read file, unmarshal, apply defaults, validate.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration surface consumed by the router,
// grouped by purpose per spec.md section 6.
type Config struct {
	Preflight   PreflightConfig   `yaml:"preflight"`
	Sizing      SizingConfig      `yaml:"sizing"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Profit      ProfitConfig      `yaml:"profit"`
	Retry       RetryConfig       `yaml:"retry"`
	Circuit     CircuitConfig     `yaml:"circuit"`
	PostTrade   PostTradeConfig   `yaml:"post_trade"`
	Chunk       ChunkConfig       `yaml:"chunk"`
	Degrade     DegradeConfig     `yaml:"degrade"`
	Consistency ConsistencyConfig `yaml:"consistency"`
	Reputation  ReputationConfig  `yaml:"reputation"`
	NetRisk     NetRiskConfig     `yaml:"net_risk"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Venues      VenuesConfig      `yaml:"venues"`
	HTTP        HTTPConfig        `yaml:"http"`
}

// VenueConnConfig is one venue's connection and fee-curve settings.
// API keys and signing keys are named by environment variable rather
// than stored inline, the way the teacher keeps exchange credentials
// out of its own committed YAML.
type VenueConnConfig struct {
	BaseURL           string  `yaml:"base_url"`
	WsURL             string  `yaml:"ws_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	PrivateKeyEnv     string  `yaml:"private_key_env"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	FeeBps            float64 `yaml:"fee_bps"`
	FeeCurveRate      float64 `yaml:"fee_curve_rate"`
	FeeCurveExponent  float64 `yaml:"fee_curve_exponent"`
}

// VenuesConfig groups the three supported venues' connection settings.
type VenuesConfig struct {
	Predict    VenueConnConfig `yaml:"predict"`
	Polymarket VenueConnConfig `yaml:"polymarket"`
	Opinion    VenueConnConfig `yaml:"opinion"`
}

// HTTPConfig is the read-only operational HTTP surface's listen config.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type PreflightConfig struct {
	SlippageBps        float64 `yaml:"slippage_bps"`
	SlippageFloorBps   float64 `yaml:"slippage_floor_bps"`
	SlippageCeilBps    float64 `yaml:"slippage_ceil_bps"`
	PriceDriftBps      float64 `yaml:"price_drift_bps"`
	StabilitySamples   int     `yaml:"stability_samples"`
	StabilityIntervalMs int    `yaml:"stability_interval_ms"`
	StabilityBps       float64 `yaml:"stability_bps"`

	ConsistencySamples       int     `yaml:"consistency_samples"`
	ConsistencyIntervalMs    int     `yaml:"consistency_interval_ms"`
	ConsistencyVwapBps       float64 `yaml:"consistency_vwap_bps"`
	ConsistencyVwapDriftBps  float64 `yaml:"consistency_vwap_drift_bps"`
	ConsistencyDepthRatioMin float64 `yaml:"consistency_depth_ratio_min"`
	ConsistencyDepthRatioDrift float64 `yaml:"consistency_depth_ratio_drift"`

	LegMinDepthUsd         float64 `yaml:"leg_min_depth_usd"`
	LegDepthUsageMax       float64 `yaml:"leg_depth_usage_max"`
	LegDepthRatioMin       float64 `yaml:"leg_depth_ratio_min"`
	LegDepthRatioSoft      float64 `yaml:"leg_depth_ratio_soft"`
	LegDepthRatioShrinkMinFactor float64 `yaml:"leg_depth_ratio_shrink_min_factor"`

	LegDeviationSoftBps   float64 `yaml:"leg_deviation_soft_bps"`
	LegDeviationSpreadBps float64 `yaml:"leg_deviation_spread_bps"`
	LegDriftSpreadBps     float64 `yaml:"leg_drift_spread_bps"`
	LegVwapDeviationBps   float64 `yaml:"leg_vwap_deviation_bps"`

	MaxVwapLevels int `yaml:"max_vwap_levels"`

	RecheckMs             int     `yaml:"recheck_ms"`
	DeviationRecheckTriggerBps float64 `yaml:"deviation_recheck_trigger_bps"`
	DriftRecheckTriggerBps     float64 `yaml:"drift_recheck_trigger_bps"`

	MissingVwapPenaltyBps float64 `yaml:"missing_vwap_penalty_bps"`
}

type SizingConfig struct {
	AdaptiveSize   bool    `yaml:"adaptive_size"`
	DepthUsage     float64 `yaml:"depth_usage"`
	MinDepthShares float64 `yaml:"min_depth_shares"`
	MaxShares      float64 `yaml:"max_shares"`
	MaxNotional    float64 `yaml:"max_notional"`
	DepthLevels    int     `yaml:"depth_levels"`
}

type ExecutionConfig struct {
	OrderType         string   `yaml:"order_type"`
	OrderTypeFallback []string `yaml:"order_type_fallback"`
	FallbackMode      string   `yaml:"fallback_mode"`
	ParallelSubmit    bool     `yaml:"parallel_submit"`
	UseFok            bool     `yaml:"use_fok"`
	LimitOrders       bool     `yaml:"limit_orders"`
	BatchOrders       bool     `yaml:"batch_orders"`
	BatchMax          int      `yaml:"batch_max"`
	CancelOpenMs      int      `yaml:"cancel_open_ms"`
	RetryAggressiveBps float64 `yaml:"retry_aggressive_bps"`
	SingleLegTopN     int      `yaml:"single_leg_top_n"`
}

type ProfitConfig struct {
	MinNotionalUsd      float64 `yaml:"min_notional_usd"`
	MinProfitUsd        float64 `yaml:"min_profit_usd"`
	MinProfitBps        float64 `yaml:"min_profit_bps"`
	MinProfitImpactMult float64 `yaml:"min_profit_impact_mult"`
	ImpactBps           float64 `yaml:"impact_bps"`
	TransferCost        float64 `yaml:"transfer_cost"`
	QualityProfitMult   float64 `yaml:"quality_profit_mult"`
	QualityProfitMax    float64 `yaml:"quality_profit_max"`
}

type RetryConfig struct {
	MaxRetries      int     `yaml:"max_retries"`
	RetryDelayMs    int     `yaml:"retry_delay_ms"`
	RetrySizeFactor float64 `yaml:"retry_size_factor"`
	RetryFactorMin  float64 `yaml:"retry_factor_min"`
	RetryFactorMax  float64 `yaml:"retry_factor_max"`
	RetryFactorUp   float64 `yaml:"retry_factor_up"`
	RetryFactorDown float64 `yaml:"retry_factor_down"`
}

type CircuitConfig struct {
	MaxFailures        int     `yaml:"max_failures"`
	WindowMs           int     `yaml:"window_ms"`
	CooldownMs         int     `yaml:"cooldown_ms"`
	TokenMaxFailures   int     `yaml:"token_max_failures"`
	TokenFailureWindowMs int   `yaml:"token_failure_window_ms"`
	TokenCooldownMs    int     `yaml:"token_cooldown_ms"`
	TokenMinScore      float64 `yaml:"token_min_score"`
	PlatformMaxFailures int    `yaml:"platform_max_failures"`
	PlatformFailureWindowMs int `yaml:"platform_failure_window_ms"`
	PlatformCooldownMs int     `yaml:"platform_cooldown_ms"`
	PlatformMinScore   float64 `yaml:"platform_min_score"`
	GlobalMinQuality   float64 `yaml:"global_min_quality"`
	GlobalCooldownMs   int     `yaml:"global_cooldown_ms"`
	FailurePauseMs     int     `yaml:"failure_pause_ms"`
	FailurePauseMaxMs  int     `yaml:"failure_pause_max_ms"`
	FailurePauseBackoff float64 `yaml:"failure_pause_backoff"`
	AbortPostTradeDriftBps float64 `yaml:"abort_post_trade_drift_bps"`
	AbortCooldownMs    int     `yaml:"abort_cooldown_ms"`
}

type PostTradeConfig struct {
	PostTradeDriftBps   float64 `yaml:"post_trade_drift_bps"`
	PostFillCheck       bool    `yaml:"post_fill_check"`
	FillCheckMs         int     `yaml:"fill_check_ms"`
	HedgeOnFailure      bool    `yaml:"hedge_on_failure"`
	HedgePredictOnly    bool    `yaml:"hedge_predict_only"`
	HedgeSlippageBps    float64 `yaml:"hedge_slippage_bps"`
	HedgeMinProfitUsd   float64 `yaml:"hedge_min_profit_usd"`
	HedgeMinEdgeBps     float64 `yaml:"hedge_min_edge_bps"`
	HedgeForceOnPartial bool    `yaml:"hedge_force_on_partial"`
	PostTradeHedge      bool    `yaml:"post_trade_hedge"`
	PostTradeNetHedge   bool    `yaml:"post_trade_net_hedge"`
	NetHedgeForce       bool    `yaml:"net_hedge_force"`
	NetHedgePredictOnly bool    `yaml:"net_hedge_predict_only"`
	NetHedgeSlippageBps float64 `yaml:"net_hedge_slippage_bps"`
	NetHedgeMinShares   float64 `yaml:"net_hedge_min_shares"`
	NetHedgeMaxShares   float64 `yaml:"net_hedge_max_shares"`
}

type ChunkConfig struct {
	MaxShares    float64 `yaml:"max_shares"`
	MaxNotional  float64 `yaml:"max_notional"`
	DelayMs      int     `yaml:"delay_ms"`
	Preflight    bool    `yaml:"preflight"`
	AutoTune     bool    `yaml:"auto_tune"`
	FactorMin    float64 `yaml:"factor_min"`
	FactorMax    float64 `yaml:"factor_max"`
	FactorUp     float64 `yaml:"factor_up"`
	FactorDown   float64 `yaml:"factor_down"`
	DelayMinMs   int     `yaml:"delay_min_ms"`
	DelayMaxMs   int     `yaml:"delay_max_ms"`
	DelayUpMs    int     `yaml:"delay_up_ms"`
	DelayDownMs  int     `yaml:"delay_down_ms"`
}

type DegradeConfig struct {
	Ms              int     `yaml:"ms"`
	ExitMs          int     `yaml:"exit_ms"`
	ExitSuccesses   int     `yaml:"exit_successes"`
	ForceSequential bool    `yaml:"force_sequential"`
	DisableBatch    bool    `yaml:"disable_batch"`
	LimitOrders     bool    `yaml:"limit_orders"`
	UseFok          bool    `yaml:"use_fok"`
	OrderType       string  `yaml:"order_type"`
	ChunkFactor     float64 `yaml:"chunk_factor"`
	ChunkDelayMs    int     `yaml:"chunk_delay_ms"`
	SlippageBps     float64 `yaml:"slippage_bps"`
	StabilityBps    float64 `yaml:"stability_bps"`
	MinQuality      float64 `yaml:"min_quality"`
}

type ConsistencyConfig struct {
	FailLimit        int     `yaml:"fail_limit"`
	FailWindowMs     int     `yaml:"fail_window_ms"`
	DegradeMs        int     `yaml:"degrade_ms"`
	Penalty          float64 `yaml:"penalty"`
	UseDegradeProfile bool   `yaml:"use_degrade_profile"`
	OrderType        string  `yaml:"order_type"`

	TemplateEnabled   bool    `yaml:"template_enabled"`
	TemplateMs        int     `yaml:"template_ms"`
	TemplateDepthUsage float64 `yaml:"template_depth_usage"`
	TemplateMaxVwapLevels int  `yaml:"template_max_vwap_levels"`
	TemplateSlippageBps float64 `yaml:"template_slippage_bps"`
	TemplateForceFok    bool   `yaml:"template_force_fok"`
	TemplateForceLimit  bool   `yaml:"template_force_limit"`
	TemplateForceSequential bool `yaml:"template_force_sequential"`
}

type ReputationConfig struct {
	TokenScoreOnSuccess    float64 `yaml:"token_score_on_success"`
	TokenScoreOnFailure    float64 `yaml:"token_score_on_failure"`
	TokenScoreOnVolatility float64 `yaml:"token_score_on_volatility"`
	TokenScoreOnPostTrade  float64 `yaml:"token_score_on_post_trade"`

	PlatformScoreOnSuccess    float64 `yaml:"platform_score_on_success"`
	PlatformScoreOnFailure    float64 `yaml:"platform_score_on_failure"`
	PlatformScoreOnVolatility float64 `yaml:"platform_score_on_volatility"`
	PlatformScoreOnPostTrade  float64 `yaml:"platform_score_on_post_trade"`
	PlatformScoreOnSpread     float64 `yaml:"platform_score_on_spread"`

	AutoBlocklist           bool    `yaml:"auto_blocklist"`
	AutoBlocklistCooldownMs int     `yaml:"auto_blocklist_cooldown_ms"`
	AutoBlocklistScore      float64 `yaml:"auto_blocklist_score"`

	AutoTuneUp        float64 `yaml:"auto_tune_up"`
	AutoTuneDown      float64 `yaml:"auto_tune_down"`
	AutoTuneMinFactor float64 `yaml:"auto_tune_min_factor"`
	AutoTuneMaxFactor float64 `yaml:"auto_tune_max_factor"`

	DepthRatioPenaltyUp   float64 `yaml:"depth_ratio_penalty_up"`
	DepthRatioPenaltyDown float64 `yaml:"depth_ratio_penalty_down"`
	DepthRatioPenaltyMax  float64 `yaml:"depth_ratio_penalty_max"`

	ReasonPreflightPenalty float64 `yaml:"reason_preflight_penalty"`
	ReasonExecutionPenalty float64 `yaml:"reason_execution_penalty"`
	ReasonPostTradePenalty float64 `yaml:"reason_post_trade_penalty"`
	ReasonHedgePenalty     float64 `yaml:"reason_hedge_penalty"`

	DynamicSlippageUp      float64 `yaml:"dynamic_slippage_up"`
	DynamicSlippageDown    float64 `yaml:"dynamic_slippage_down"`
	DynamicStabilityUp     float64 `yaml:"dynamic_stability_up"`
	DynamicStabilityDown   float64 `yaml:"dynamic_stability_down"`
	DynamicRetryDelayUpMs  float64 `yaml:"dynamic_retry_delay_up_ms"`
	DynamicRetryDelayDownMs float64 `yaml:"dynamic_retry_delay_down_ms"`
	RetryDelayFloorMs      float64 `yaml:"retry_delay_floor_ms"`
	RetryDelayCeilMs       float64 `yaml:"retry_delay_ceil_ms"`

	FailureBumpProfitBpsCap    float64 `yaml:"failure_bump_profit_bps_cap"`
	FailureBumpProfitBpsStep   float64 `yaml:"failure_bump_profit_bps_step"`
	FailureBumpProfitUsdCap    float64 `yaml:"failure_bump_profit_usd_cap"`
	FailureBumpProfitUsdStep   float64 `yaml:"failure_bump_profit_usd_step"`
	FailureBumpDepthUsdCap     float64 `yaml:"failure_bump_depth_usd_cap"`
	FailureBumpDepthUsdStep    float64 `yaml:"failure_bump_depth_usd_step"`
	FailureBumpMinNotionalCap  float64 `yaml:"failure_bump_min_notional_cap"`
	FailureBumpMinNotionalStep float64 `yaml:"failure_bump_min_notional_step"`
	FailureBumpRecoverFactor   float64 `yaml:"failure_bump_recover_factor"`
}

type NetRiskConfig struct {
	Usd             float64 `yaml:"usd"`
	PerTokenUsd     float64 `yaml:"per_token_usd"`
	MinFactor       float64 `yaml:"min_factor"`
	MaxFactor       float64 `yaml:"max_factor"`
	DegradeFactor   float64 `yaml:"degrade_factor"`
	ScaleOnQuality  bool    `yaml:"scale_on_quality"`
	AutoTighten     bool    `yaml:"auto_tighten"`
	TightenOnFailure float64 `yaml:"tighten_on_failure"`
	RelaxOnSuccess   float64 `yaml:"relax_on_success"`
}

type PersistenceConfig struct {
	StatePath    string `yaml:"state_path"`
	MetricsPath  string `yaml:"metrics_path"`
	MetricsFlushMs int  `yaml:"metrics_flush_ms"`
	MetricsLogMs   int  `yaml:"metrics_log_ms"`
}

// Load reads a YAML config file, decodes it onto Default() and
// validates the result: fields absent from the file keep their default
// value, while a field set explicitly to zero stays zero.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field invariants the router relies on.
func (c *Config) Validate() error {
	if c.Preflight.SlippageFloorBps > c.Preflight.SlippageCeilBps {
		return fmt.Errorf("preflight.slippage_floor_bps must be <= slippage_ceil_bps")
	}
	if c.Chunk.FactorMin > c.Chunk.FactorMax {
		return fmt.Errorf("chunk.factor_min must be <= factor_max")
	}
	if c.Retry.RetryFactorMin > c.Retry.RetryFactorMax {
		return fmt.Errorf("retry.retry_factor_min must be <= retry_factor_max")
	}
	if c.Reputation.AutoTuneMinFactor > c.Reputation.AutoTuneMaxFactor {
		return fmt.Errorf("reputation.auto_tune_min_factor must be <= auto_tune_max_factor")
	}
	if c.Persistence.StatePath == "" || c.Persistence.MetricsPath == "" {
		return fmt.Errorf("persistence.state_path and metrics_path are required")
	}
	return nil
}

// Default returns a fully populated Config with conservative defaults,
// the values a fresh deployment would start from before any self-tuning.
func Default() *Config {
	return &Config{
		Preflight: PreflightConfig{
			SlippageBps:              75,
			SlippageFloorBps:         30,
			SlippageCeilBps:          150,
			PriceDriftBps:            40,
			StabilitySamples:         3,
			StabilityIntervalMs:      150,
			StabilityBps:             25,
			ConsistencySamples:       2,
			ConsistencyIntervalMs:    200,
			ConsistencyVwapBps:       20,
			ConsistencyVwapDriftBps:  15,
			ConsistencyDepthRatioMin: 0.5,
			ConsistencyDepthRatioDrift: 0.1,
			LegMinDepthUsd:           50,
			LegDepthUsageMax:         0.6,
			LegDepthRatioMin:         0.3,
			LegDepthRatioSoft:        0.6,
			LegDepthRatioShrinkMinFactor: 0.25,
			LegDeviationSoftBps:      40,
			LegDeviationSpreadBps:    30,
			LegDriftSpreadBps:        30,
			LegVwapDeviationBps:      50,
			MaxVwapLevels:            8,
			RecheckMs:                250,
			DeviationRecheckTriggerBps: 35,
			DriftRecheckTriggerBps:     35,
			MissingVwapPenaltyBps:    20,
		},
		Sizing: SizingConfig{
			AdaptiveSize:   true,
			DepthUsage:     0.5,
			MinDepthShares: 5,
			MaxShares:      100000,
			MaxNotional:    25000,
			DepthLevels:    10,
		},
		Execution: ExecutionConfig{
			OrderType:          "FOK",
			OrderTypeFallback:  []string{"FAK", "GTD", "GTC"},
			FallbackMode:       "AUTO",
			ParallelSubmit:     true,
			UseFok:             true,
			LimitOrders:        true,
			BatchOrders:        false,
			BatchMax:           10,
			CancelOpenMs:       2000,
			RetryAggressiveBps: 5,
			SingleLegTopN:      1,
		},
		Profit: ProfitConfig{
			MinNotionalUsd:      20,
			MinProfitUsd:        1,
			MinProfitBps:        50,
			MinProfitImpactMult: 1.0,
			ImpactBps:           5,
			TransferCost:        0,
			QualityProfitMult:   0.5,
			QualityProfitMax:    2.0,
		},
		Retry: RetryConfig{
			MaxRetries:      3,
			RetryDelayMs:    500,
			RetrySizeFactor: 0.8,
			RetryFactorMin:  0.5,
			RetryFactorMax:  1.0,
			RetryFactorUp:   0.05,
			RetryFactorDown: 0.1,
		},
		Circuit: CircuitConfig{
			MaxFailures:             3,
			WindowMs:                60000,
			CooldownMs:              30000,
			TokenMaxFailures:        3,
			TokenFailureWindowMs:    120000,
			TokenCooldownMs:         60000,
			TokenMinScore:           20,
			PlatformMaxFailures:     4,
			PlatformFailureWindowMs: 120000,
			PlatformCooldownMs:      60000,
			PlatformMinScore:        20,
			GlobalMinQuality:        0.4,
			GlobalCooldownMs:        30000,
			FailurePauseMs:          1000,
			FailurePauseMaxMs:       30000,
			FailurePauseBackoff:     2.0,
			AbortPostTradeDriftBps:  80,
			AbortCooldownMs:         30000,
		},
		PostTrade: PostTradeConfig{
			PostTradeDriftBps:   40,
			PostFillCheck:       true,
			FillCheckMs:         1500,
			HedgeOnFailure:      true,
			HedgePredictOnly:    false,
			HedgeSlippageBps:    25,
			HedgeMinProfitUsd:   0.5,
			HedgeMinEdgeBps:     10,
			HedgeForceOnPartial: false,
			PostTradeHedge:      true,
			PostTradeNetHedge:   false,
			NetHedgeSlippageBps: 25,
			NetHedgeMinShares:   1,
			NetHedgeMaxShares:   100000,
		},
		Chunk: ChunkConfig{
			MaxShares:   500,
			MaxNotional: 5000,
			DelayMs:     200,
			Preflight:   true,
			AutoTune:    true,
			FactorMin:   0.1,
			FactorMax:   1.0,
			FactorUp:    0.05,
			FactorDown:  0.2,
			DelayMinMs:  50,
			DelayMaxMs:  2000,
			DelayUpMs:   100,
			DelayDownMs: 25,
		},
		Degrade: DegradeConfig{
			Ms:              60000,
			ExitMs:          30000,
			ExitSuccesses:   2,
			ForceSequential: true,
			DisableBatch:    true,
			LimitOrders:     true,
			UseFok:          true,
			OrderType:       "FOK",
			ChunkFactor:     0.2,
			ChunkDelayMs:    500,
			SlippageBps:     50,
			StabilityBps:    15,
			MinQuality:      0.5,
		},
		Consistency: ConsistencyConfig{
			FailLimit:         2,
			FailWindowMs:      120000,
			DegradeMs:         60000,
			Penalty:           0.1,
			UseDegradeProfile: true,
			OrderType:         "FOK",
			TemplateEnabled:       true,
			TemplateMs:            60000,
			TemplateDepthUsage:    0.3,
			TemplateMaxVwapLevels: 3,
			TemplateSlippageBps:   30,
			TemplateForceFok:      true,
			TemplateForceLimit:    true,
			TemplateForceSequential: true,
		},
		Reputation: ReputationConfig{
			TokenScoreOnSuccess:    1,
			TokenScoreOnFailure:    5,
			TokenScoreOnVolatility: 8,
			TokenScoreOnPostTrade:  6,
			PlatformScoreOnSuccess:    1,
			PlatformScoreOnFailure:    5,
			PlatformScoreOnVolatility: 8,
			PlatformScoreOnPostTrade:  6,
			PlatformScoreOnSpread:     4,
			AutoBlocklist:           true,
			AutoBlocklistCooldownMs: 300000,
			AutoBlocklistScore:      10,
			AutoTuneUp:              0.02,
			AutoTuneDown:            0.05,
			AutoTuneMinFactor:       0.3,
			AutoTuneMaxFactor:       1.5,
			DepthRatioPenaltyUp:     0.1,
			DepthRatioPenaltyDown:   0.05,
			DepthRatioPenaltyMax:    0.5,
			ReasonPreflightPenalty:  0.02,
			ReasonExecutionPenalty:  0.05,
			ReasonPostTradePenalty:  0.08,
			ReasonHedgePenalty:      0.03,
			DynamicSlippageUp:       5,
			DynamicSlippageDown:     10,
			DynamicStabilityUp:      2,
			DynamicStabilityDown:    5,
			DynamicRetryDelayUpMs:   150,
			DynamicRetryDelayDownMs: 75,
			RetryDelayFloorMs:       200,
			RetryDelayCeilMs:        5000,
			FailureBumpProfitBpsCap:    40,
			FailureBumpProfitBpsStep:   5,
			FailureBumpProfitUsdCap:    5,
			FailureBumpProfitUsdStep:   0.5,
			FailureBumpDepthUsdCap:     100,
			FailureBumpDepthUsdStep:    10,
			FailureBumpMinNotionalCap:  50,
			FailureBumpMinNotionalStep: 5,
			FailureBumpRecoverFactor:   0.5,
		},
		NetRisk: NetRiskConfig{
			Usd:              50000,
			PerTokenUsd:      15000,
			MinFactor:        0.4,
			MaxFactor:        1.0,
			DegradeFactor:    0.5,
			ScaleOnQuality:   true,
			AutoTighten:      true,
			TightenOnFailure: 0.15,
			RelaxOnSuccess:   0.05,
		},
		Persistence: PersistenceConfig{
			StatePath:      "state/reputation.json",
			MetricsPath:    "state/metrics.json",
			MetricsFlushMs: 5000,
			MetricsLogMs:   60000,
		},
		Venues: VenuesConfig{
			Predict: VenueConnConfig{
				BaseURL:           "https://api.predict.example/v1",
				APIKeyEnv:         "ARBROUTER_PREDICT_API_KEY",
				RequestsPerSecond: 8,
				FeeBps:            100,
				FeeCurveRate:      0.002,
				FeeCurveExponent:  2,
			},
			Polymarket: VenueConnConfig{
				BaseURL:          "https://clob.polymarket.com",
				WsURL:            "wss://ws-subscriptions-clob.polymarket.com/ws",
				PrivateKeyEnv:    "ARBROUTER_POLYMARKET_PRIVATE_KEY",
				FeeBps:           0,
				FeeCurveRate:     0.001,
				FeeCurveExponent: 2,
			},
			Opinion: VenueConnConfig{
				BaseURL:           "https://api.opinion.example/v1",
				APIKeyEnv:         "ARBROUTER_OPINION_API_KEY",
				RequestsPerSecond: 8,
				FeeBps:            150,
				FeeCurveRate:      0.0025,
				FeeCurveExponent:  2,
			},
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 9090,
		},
	}
}
