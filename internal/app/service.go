package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"llmTraderBot/config"
	"llmTraderBot/internal/decision"
	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/executor"
	"llmTraderBot/internal/metrics"
	"llmTraderBot/internal/ports"
	"llmTraderBot/internal/risk"
)

// systemPrompt frames every decision request. The reply contract (one JSON
// object) is what the parser depends on; everything else is advisory.
const systemPrompt = `You are a cautious crypto futures trading assistant. ` +
	`Given an account and position snapshot, reply with EXACTLY ONE JSON object: ` +
	`{"instrument","action","size_contracts","leverage","stop_loss","take_profit","rationale"}. ` +
	`action is one of BUY, SELL, CLOSE, UPDATE_TPSL, HOLD. ` +
	`Never remove or widen an existing stop loss. When in doubt, HOLD.`

// cycleSnapshot is the market/account state serialized into the decision
// request payload.
type cycleSnapshot struct {
	Instrument      string           `json:"instrument"`
	Price           float64          `json:"last_price"`
	TotalEquity     float64          `json:"total_equity"`
	AvailableEquity float64          `json:"available_equity"`
	Position        *domain.Position `json:"position,omitempty"`
	Timestamp       string           `json:"timestamp"`
}

// TradingService orchestrates the decision cycles.
type TradingService struct {
	cfg      *config.Config
	logger   ports.Logger
	exchange ports.ExchangeClient
	repo     ports.ExecutionRepository
	provider ports.DecisionProvider
	exec     *executor.Executor
	stages   risk.StageTable

	// Serializes cycles per instrument; distinct instruments run concurrently.
	mu     sync.Mutex
	instMu map[string]*sync.Mutex
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	repo ports.ExecutionRepository,
	provider ports.DecisionProvider,
	exec *executor.Executor,
	stages risk.StageTable,
) (*TradingService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || exchange == nil || repo == nil || provider == nil || exec == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if len(cfg.Instruments) == 0 {
		return nil, fmt.Errorf("configuration must name at least one instrument")
	}
	if err := stages.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk stage table: %w", err)
	}

	return &TradingService{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		repo:     repo,
		provider: provider,
		exec:     exec,
		stages:   stages,
		instMu:   make(map[string]*sync.Mutex),
	}, nil
}

// Start begins the decision loops, one per instrument, and blocks until the
// context is canceled or a shutdown signal arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// Connectivity and clock sanity before the first cycle.
	if err := s.exchange.Ping(ctx); err != nil {
		return fmt.Errorf("exchange unreachable: %w", err)
	}
	serverTime, err := s.exchange.GetServerTime(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch exchange server time: %w", err)
	}
	if drift := time.Since(serverTime); drift > 5*time.Second || drift < -5*time.Second {
		s.logger.Warn(ctx, "Local clock drifts from exchange time", map[string]interface{}{"drift": drift.String()})
	}
	s.logger.Info(ctx, "Exchange connectivity verified", map[string]interface{}{
		"exchange":    s.cfg.Exchange,
		"instruments": s.cfg.Instruments,
		"interval":    s.cfg.CycleInterval.String(),
	})

	var wg sync.WaitGroup
	for _, instrument := range s.cfg.Instruments {
		wg.Add(1)
		go func(inst string) {
			defer wg.Done()
			s.runLoop(ctx, inst)
		}(instrument)
	}

	wg.Wait()
	s.logger.Info(ctx, "Trading Service stopped")
	return ctx.Err()
}

func (s *TradingService) runLoop(ctx context.Context, instrument string) {
	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		res, err := s.RunCycle(ctx, instrument)
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil:
			metrics.Cycles.WithLabelValues(instrument, "error").Inc()
			s.logger.Error(ctx, err, "Decision cycle failed", map[string]interface{}{"instrument": instrument})
		case res.AppliedAction == domain.ActionHold:
			metrics.Cycles.WithLabelValues(instrument, "hold").Inc()
		default:
			metrics.Cycles.WithLabelValues(instrument, "ok").Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunCycle executes one full decision cycle for an instrument. Every cycle
// starts from a fresh snapshot: nothing is carried over from prior cycles,
// so one failed cycle cannot poison the next.
func (s *TradingService) RunCycle(ctx context.Context, instrument string) (*domain.ExecutionResult, error) {
	lock := s.lockFor(instrument)
	lock.Lock()
	defer lock.Unlock()

	op := "TradingService.RunCycle"

	snap, pos, rules, err := s.fetchSnapshot(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("snapshot for %s: %w", instrument, err)
	}
	metrics.Equity.Set(snap.TotalEquity)

	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot for %s: %w", instrument, err)
	}

	raw, err := s.provider.GetDecision(ctx, systemPrompt, string(payload))
	if err != nil {
		return nil, fmt.Errorf("decision request for %s: %w", instrument, err)
	}

	d, note := s.parseAndNormalize(ctx, raw, instrument, pos)
	if note != "" {
		s.logger.Warn(ctx, op+": decision downgraded to HOLD", map[string]interface{}{
			"instrument": instrument,
			"note":       note,
		})
	}

	result := s.execute(ctx, d, note, snap, pos, rules)
	s.persist(ctx, d, result)
	return result, nil
}

func (s *TradingService) lockFor(instrument string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.instMu[instrument]
	if !ok {
		lock = &sync.Mutex{}
		s.instMu[instrument] = lock
	}
	return lock
}

func (s *TradingService) fetchSnapshot(ctx context.Context, instrument string) (*cycleSnapshot, *domain.Position, *domain.Instrument, error) {
	account, err := s.exchange.GetAccountSnapshot(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("account snapshot: %w", err)
	}
	price, err := s.exchange.GetTickerPrice(ctx, instrument)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ticker price: %w", err)
	}
	rules, err := s.exchange.GetInstrument(ctx, instrument)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("instrument rules: %w", err)
	}
	pos, err := s.exchange.GetPosition(ctx, instrument)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("position: %w", err)
	}

	return &cycleSnapshot{
		Instrument:      instrument,
		Price:           price,
		TotalEquity:     account.TotalEquity,
		AvailableEquity: account.AvailableEquity,
		Position:        pos,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}, pos, rules, nil
}

// parseAndNormalize turns raw model output into a safe decision. Parse
// failures and normalizer rejections both land on HOLD with an audit note;
// neither aborts the cycle.
func (s *TradingService) parseAndNormalize(ctx context.Context, raw, instrument string, pos *domain.Position) (domain.Decision, string) {
	parsed, err := decision.Parse(raw, instrument)
	if err != nil {
		metrics.Holds.WithLabelValues(instrument, "parse").Inc()
		return domain.Decision{Instrument: instrument, Action: domain.ActionHold},
			fmt.Sprintf("unparseable decision: %v", err)
	}

	d, note := decision.Normalize(*parsed, pos)
	if note != "" {
		reason := "ratchet"
		if pos == nil {
			reason = "no_position"
		}
		metrics.Holds.WithLabelValues(instrument, reason).Inc()
	}
	return d, note
}

func (s *TradingService) execute(ctx context.Context, d domain.Decision, note string, snap *cycleSnapshot, pos *domain.Position, rules *domain.Instrument) *domain.ExecutionResult {
	result := &domain.ExecutionResult{
		Instrument:    d.Instrument,
		AppliedAction: d.Action,
		AuditNote:     note,
	}

	switch d.Action {
	case domain.ActionHold:
		result.Accepted = true

	case domain.ActionClose:
		side, err := s.exec.CloseAny(ctx, d.Instrument)
		if err != nil {
			result.Err = err
		} else {
			result.Accepted = true
			result.AuditNote = joinNote(note, fmt.Sprintf("closed %s position", side))
		}

	case domain.ActionUpdateTPSL:
		err := s.exec.ReconcileProtection(ctx, pos, d.ProposedStopLoss, d.ProposedTakeProfit)
		if err != nil {
			result.Err = err
		} else {
			result.Accepted = true
			result.AppliedStopLoss = d.ProposedStopLoss
			result.AppliedTakeProfit = d.ProposedTakeProfit
			metrics.ProtectionUpdates.WithLabelValues(d.Instrument).Inc()
		}

	case domain.ActionBuy, domain.ActionSell:
		s.executeTrade(ctx, d, snap, pos, rules, result)

	default:
		result.AppliedAction = domain.ActionHold
		result.AuditNote = joinNote(note, fmt.Sprintf("unhandled action %q", d.Action))
		result.Accepted = true
	}

	return result
}

func (s *TradingService) executeTrade(ctx context.Context, d domain.Decision, snap *cycleSnapshot, pos *domain.Position, rules *domain.Instrument, result *domain.ExecutionResult) {
	adding := pos != nil && pos.SizeContracts > 0

	// Opening orders are capped per UTC day; reduces and closes are not.
	if !adding || sameDirection(d.Action, pos) {
		count, err := s.repo.CountTodayByInstrument(ctx, d.Instrument)
		if err != nil {
			s.logger.Warn(ctx, "Trade count lookup failed, proceeding", map[string]interface{}{
				"instrument": d.Instrument, "error": err.Error(),
			})
		} else if count >= s.cfg.MaxTradesPerDay {
			result.AppliedAction = domain.ActionHold
			result.Accepted = true
			result.AuditNote = joinNote(result.AuditNote, fmt.Sprintf("daily trade cap reached (%d)", s.cfg.MaxTradesPerDay))
			metrics.Holds.WithLabelValues(d.Instrument, "clamp").Inc()
			return
		}
	}

	// Decisions are made against the snapshot price; if the market moved
	// more than the tolerance since then, stand down rather than chase.
	if s.cfg.PriceTolerance > 0 {
		current, err := s.exchange.GetTickerPrice(ctx, d.Instrument)
		if err == nil && snap.Price > 0 {
			drift := math.Abs(current-snap.Price) / snap.Price
			if drift > s.cfg.PriceTolerance {
				result.AppliedAction = domain.ActionHold
				result.Accepted = true
				result.AuditNote = joinNote(result.AuditNote, fmt.Sprintf("price drifted %.4f%% since snapshot", drift*100))
				metrics.Holds.WithLabelValues(d.Instrument, "clamp").Inc()
				return
			}
		}
	}

	stage := s.stages.For(snap.TotalEquity)
	riskRatio, capRatio := stage.OpenRiskRatio, stage.OpenCapRatio
	if adding && sameDirection(d.Action, pos) {
		riskRatio, capRatio = stage.AddRiskRatio, stage.AddCapRatio
	}

	leverage := stage.Leverage
	if d.ProposedLeverage > 0 && d.ProposedLeverage < leverage {
		leverage = d.ProposedLeverage
	}

	sized := risk.Size(risk.SizeInput{
		AvailableEquity: snap.AvailableEquity,
		Price:           snap.Price,
		UnitValue:       rules.UnitValue,
		LotStep:         rules.LotStep,
		Leverage:        leverage,
		RiskRatio:       riskRatio,
		CapRatio:        capRatio,
		Modifier:        s.cfg.PerformanceModifier,
		ProposedSize:    d.ProposedSize,
	})
	if sized.Hold {
		result.AppliedAction = domain.ActionHold
		result.Accepted = true
		result.AuditNote = joinNote(result.AuditNote, sized.Note)
		metrics.Holds.WithLabelValues(d.Instrument, "clamp").Inc()
		return
	}
	if sized.Clamped {
		result.AuditNote = joinNote(result.AuditNote, sized.Note)
	}

	openRes, err := s.exec.Execute(ctx, executor.OpenRequest{
		Instrument: d.Instrument,
		Action:     d.Action,
		Size:       sized.Contracts,
		LotStep:    rules.LotStep,
		Leverage:   leverage,
		StopLoss:   d.ProposedStopLoss,
		TakeProfit: d.ProposedTakeProfit,
	})
	if err != nil {
		result.Err = err
		return
	}

	result.Accepted = true
	result.AppliedSize = openRes.FinalSize
	result.AppliedStopLoss = d.ProposedStopLoss
	result.AppliedTakeProfit = d.ProposedTakeProfit
	result.OrderID = openRes.OrderID
	if openRes.Retries > 0 {
		metrics.ShrinkRetries.WithLabelValues(d.Instrument).Add(float64(openRes.Retries))
		result.AuditNote = joinNote(result.AuditNote, fmt.Sprintf("size shrunk to %v after %d margin retries", openRes.FinalSize, openRes.Retries))
	}
	metrics.Orders.WithLabelValues(d.Instrument, string(d.Action)).Inc()
}

// persist records the cycle outcome. Persistence failures are logged, never
// propagated: the trade already happened and must not look failed.
func (s *TradingService) persist(ctx context.Context, d domain.Decision, result *domain.ExecutionResult) {
	now := time.Now().UTC()

	decRec := &domain.DecisionRecord{
		Instrument:     d.Instrument,
		ProposedAction: d.Action,
		AppliedAction:  result.AppliedAction,
		ProposedSize:   d.ProposedSize,
		StopLoss:       d.ProposedStopLoss,
		TakeProfit:     d.ProposedTakeProfit,
		AuditNote:      result.AuditNote,
		Rationale:      d.Rationale,
		CreatedAt:      now,
	}
	if _, err := s.repo.RecordDecision(ctx, decRec); err != nil {
		s.logger.Error(ctx, err, "Failed to persist decision record", map[string]interface{}{"instrument": d.Instrument})
	}

	execRec := &domain.ExecutionRecord{
		Instrument: result.Instrument,
		Action:     result.AppliedAction,
		Size:       result.AppliedSize,
		StopLoss:   result.AppliedStopLoss,
		TakeProfit: result.AppliedTakeProfit,
		OrderID:    result.OrderID,
		Accepted:   result.Accepted,
		CreatedAt:  now,
	}
	if result.Err != nil {
		execRec.Error = result.Err.Error()
	}
	if _, err := s.repo.RecordExecution(ctx, execRec); err != nil {
		s.logger.Error(ctx, err, "Failed to persist execution record", map[string]interface{}{"instrument": result.Instrument})
	}
}

func sameDirection(action domain.Action, pos *domain.Position) bool {
	if pos == nil {
		return false
	}
	return (action == domain.ActionBuy && pos.Side == domain.PositionLong) ||
		(action == domain.ActionSell && pos.Side == domain.PositionShort)
}

func joinNote(existing, added string) string {
	if existing == "" {
		return added
	}
	if added == "" {
		return existing
	}
	return existing + "; " + added
}
