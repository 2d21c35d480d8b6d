package main

import (
	"fmt"
	"strings"

	"github.com/alejandrodnm/sweepbot/config"
	"github.com/alejandrodnm/sweepbot/internal/adapters/binance"
	"github.com/alejandrodnm/sweepbot/internal/application/engine/live"
	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/strategy"
)

func gatewayOptions(cfg *config.Config) binance.Options {
	ex := cfg.Exchange
	return binance.Options{
		APIKey:         ex.APIKey,
		APISecret:      ex.APISecret,
		Testnet:        ex.Testnet,
		BaseURL:        ex.RestBase,
		HTTPTimeout:    ex.HTTPTimeout,
		RequestsPerSec: ex.RequestsPerSec,
		Burst:          ex.Burst,
		RecvWindowBase: ex.RecvWindowBase,
		RecvWindowBump: ex.RecvWindowBump,
		RecvWindowMax:  ex.RecvWindowMax,
		ReadRetries:    ex.KlineRetries,
	}
}

// streamOptions arma las opciones de un stream; onReconnect puede ser nil.
func streamOptions(cfg *config.Config, onReconnect func()) binance.StreamOptions {
	base := cfg.Exchange.WSBase
	if base == "" && cfg.Exchange.Testnet {
		base = binance.TestnetWSBase
	}
	return binance.StreamOptions{
		WSBase:        base,
		BackoffMin:    cfg.Stream.BackoffMin,
		BackoffMax:    cfg.Stream.BackoffMax,
		BackoffFactor: cfg.Stream.BackoffFactor,
		OnReconnect:   onReconnect,
	}
}

func strategyConfig(cfg *config.Config) (strategy.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return strategy.Config{}, fmt.Errorf("strategy config: %w", err)
	}
	sessions, err := cfg.SessionWindows()
	if err != nil {
		return strategy.Config{}, fmt.Errorf("strategy config: %w", err)
	}
	s := cfg.Strategy
	lv, dt, sc := s.Levels, s.Detect, s.Score

	tags := make(map[domain.LevelTag]bool, len(sc.HTFTags))
	for _, t := range sc.HTFTags {
		if t = strings.TrimSpace(t); t != "" {
			tags[domain.LevelTag(strings.ToUpper(t))] = true
		}
	}

	return strategy.Config{
		Sessions: sessions,
		Location: loc,
		Levels: strategy.LevelConfig{
			EQEnabled:       lv.EQ,
			EQLookback:      lv.EQLookback,
			EQSpreadTicks:   lv.EQSpreadTicks,
			EQMinHits:       lv.EQMinHits,
			SessionsEnabled: lv.Sessions,
			ORBEnabled:      lv.ORB,
			ORBAnchor:       lv.ORBAnchor,
			ORBSession:      lv.ORBSession,
			ORBMinutes:      lv.ORBMinutes,
			RangeEnabled:    lv.Range,
			RangeWindow:     lv.RangeWindow,
			RangeMinTouches: lv.RangeMinTouches,
			RangeATRFracMax: lv.RangeATRFracMax,
			FVGEdgesEnabled: lv.FVGEdges,
			FVGEdgeMaxAge:   lv.FVGEdgeMaxAge,
			FiguresEnabled:  lv.Figures,
			FigureIncrement: lv.FigureIncrement,
			FigureQuarters:  lv.FigureQuarters,
			VWAPEnabled:     lv.VWAP,
			VWAPStdK:        lv.VWAPStdK,
			WeightEQ:        lv.WeightEQ,
			WeightSession:   lv.WeightSession,
			WeightFVG:       lv.WeightFVG,
			WeightFigure:    lv.WeightFigure,
			WeightORB:       lv.WeightORB,
			WeightRange:     lv.WeightRange,
			WeightVWAP:      lv.WeightVWAP,
			ClusterBps:      lv.ClusterBps,
			TopK:            lv.TopK,
		},
		Detect: strategy.DetectConfig{
			FVG: domain.FVGParams{
				UseBps:   dt.FVGUseBps,
				MinTicks: dt.FVGMinTicks,
				MinBps:   dt.FVGMinBps,
				RelaxBps: dt.FVGRelaxBps,
			},
			Fill: domain.FillPolicy{
				Rule:              domain.FillRule(dt.FillRule),
				RequireBody:       dt.FillRequireBody,
				MinPenetrationATR: dt.FillMinATR,
				MinConsecutive:    dt.FillMinConsecutive,
			},
			Quality: domain.QualityParams{
				GapWeight: dt.QualityGapW,
				VolWeight: dt.QualityVolW,
				GapNorm:   dt.QualityGapNorm,
				VolShift:  dt.QualityVolShift,
				VolScale:  dt.QualityVolScale,
			},
			PenetrationBps:     dt.PenetrationBps,
			CloseBackBps:       dt.CloseBackBps,
			MaxRejectBars:      dt.MaxRejectBars,
			MinBars:            dt.MinBars,
			RegimeAdapt:        dt.RegimeAdapt,
			BaseOffset:         dt.BaseOffset,
			QualityWeight:      dt.QualityWeight,
			DisplacementWeight: dt.DisplacementWeight,
		},
		Score: strategy.ScoreConfig{
			SessionBonus:  sc.SessionBonus,
			OverlapBonus:  sc.OverlapBonus,
			PoolScoreGain: sc.PoolScoreGain,
			PoolNearUnit:  sc.PoolNearUnit,
			PoolV2Weight:  sc.PoolV2Weight,
			ProximityBps:  sc.ProximityBps,
			HTFTagMult:    sc.HTFTagMult,
			HTFTags:       tags,
			ContainmentW:  sc.ContainmentW,
			BOSWeight:     sc.BOSWeight,
			CHOCHWeight:   sc.CHOCHWeight,
			HTFWeight:     sc.HTFWeight,
		},
		Targets: strategy.TargetConfig{
			RR:        cfg.Risk.RR,
			RRCap:     cfg.Risk.RRCap,
			MinRRPool: cfg.Risk.MinRRPool,
			FeeBps:    cfg.Risk.FeeBps,
		},
	}, nil
}

func engineConfig(cfg *config.Config) (live.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return live.Config{}, fmt.Errorf("engine config: %w", err)
	}
	r, h := cfg.Risk, cfg.Health
	return live.Config{
		Symbol:         cfg.Symbol,
		Timeframe:      domain.Timeframe(cfg.Timeframe),
		Location:       loc,
		Leverage:       cfg.Exchange.Leverage,
		WorkingType:    cfg.Exchange.WorkingType,
		RequireOneWay:  cfg.Exchange.RequireOneWay,
		MarginType:     cfg.Exchange.MarginType,
		RestoreATRMult: cfg.Trailing.RestoreATRMult,
		Risk: live.RiskConfig{
			RiskPct:        r.RiskPct,
			ScoreThreshold: cfg.Strategy.Score.Threshold,
			MaxTrades:      r.MaxTrades,
			MaxDailyLoss:   r.MaxDailyLoss,
			LossCooldown:   r.LossCooldown,
			Throttle: domain.ThrottleLadder{
				DD1:   r.ThrottleDD1,
				DD2:   r.ThrottleDD2,
				Mult1: r.ThrottleMult1,
				Mult2: r.ThrottleMult2,
			},
			MinStopTicks: r.MinStopTicks,
			PartialFrac:  r.PartialFrac,
			NotionalCap:  r.NotionalCap,
			GrossCap:     r.GrossCap,
			PriceSource:  r.PriceSource,
			UseAvailable: r.UseAvailable,
			BalanceTTL:   r.BalanceTTL,
		},
		Funding: domain.FundingPolicy{
			Enabled:     cfg.Funding.Enabled,
			Window:      cfg.Funding.Window,
			Symmetric:   cfg.Funding.Symmetric,
			BlockNear:   cfg.Funding.BlockNear,
			Penalty:     cfg.Funding.Penalty,
			HighAbsBps:  cfg.Funding.HighAbsBps,
			HighRiskMul: cfg.Funding.HighRiskMult,
		},
		Trail: domain.TrailParams{
			ActivationR: cfg.Trailing.ActivationR,
			ATRMult:     cfg.Trailing.ATRMult,
			MinTicks:    cfg.Trailing.MinTicks,
		},
		Health: live.HealthConfig{
			DriftSoftMs:      h.DriftSoftMs,
			DriftHardMs:      h.DriftHardMs,
			DriftBreachN:     h.DriftBreachN,
			DriftRecoverM:    h.DriftRecoverM,
			DriftEvery:       h.DriftEvery,
			StaleAfter:       h.StaleAfter,
			StaleHard:        h.StaleHard,
			FreshMax:         h.FreshMax,
			Watchdog:         h.Watchdog,
			FreshGrace:       h.FreshGrace,
			SafeMode:         h.SafeMode,
			SafeAutoRecover:  h.SafeAutoRecover,
			RequireListenKey: h.RequireListenKey,
		},
		Circuit: live.CircuitConfig{
			BlockedN:     h.BlockedN,
			BlockedPause: h.BlockedPause,
			OrderN:       h.OrderN,
			OrderPause:   h.OrderPause,
			StaleN:       h.StaleN,
			StalePause:   h.StalePause,
		},
		Context: live.ContextConfig{
			PriorEnabled: cfg.Strategy.Levels.Prior,
			PriorWeight:  cfg.Strategy.Levels.PriorWeight,
			PriorTTL:     cfg.Strategy.Levels.PriorTTL,
			BiasEnabled:  cfg.Strategy.Bias.Enabled,
			BiasHystBps:  cfg.Strategy.Bias.HystBps,
			BiasRefresh:  cfg.Strategy.Bias.Refresh,
		},
		DedupeCooldownMin: cfg.Storage.DedupeCooldown,
		DedupeKeep:        cfg.Storage.DedupeKeep,
		HeartbeatEvery:    h.HeartbeatEvery,
		SaveEvery:         cfg.Storage.SaveEvery,
		ReconcileEvery:    h.ReconcileEvery,
		QueryRetries:      cfg.Exchange.SignedRetries,
	}, nil
}
