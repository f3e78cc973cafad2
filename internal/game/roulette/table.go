package roulette

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBettingDuration is the countdown of each betting phase.
	DefaultBettingDuration = 30 * time.Second
	// DefaultSpinDuration paces the wheel animation before payout.
	DefaultSpinDuration = 10 * time.Second
	// DefaultPayoutDuration is how long results stay on screen.
	DefaultPayoutDuration = 5 * time.Second
	// DefaultMaxSettleAttempts bounds draw and settlement retries.
	DefaultMaxSettleAttempts = 3
	// DefaultPersistTimeout bounds a single settlement write.
	DefaultPersistTimeout = 5 * time.Second
	// DefaultHistorySize is the number of recent winning numbers kept.
	DefaultHistorySize = 10
	// DefaultMaxStake caps a player's open bets in one round.
	DefaultMaxStake = 1_000_000_000
	// MaxStakeLimit is the largest stake whose payout plus stake fits in an
	// int64 on top of a balance of up to MaxSeatBalance.
	MaxStakeLimit = (math.MaxInt64 - MaxSeatBalance) / 36
	// MaxSeatBalance is the largest balance a player can be seated with.
	MaxSeatBalance = math.MaxInt64 / 2

	idleWait = time.Minute
)

// Config holds the timing and house rules of a table.
type Config struct {
	BettingDuration      time.Duration
	SpinDuration         time.Duration
	PayoutDuration       time.Duration
	MaxSettleAttempts    int
	PersistTimeout       time.Duration
	ColumnDozenExclusive bool
	HistorySize          int
	MaxStake             int64
}

// DefaultConfig returns the standard table configuration.
func DefaultConfig() Config {
	return Config{
		BettingDuration:      DefaultBettingDuration,
		SpinDuration:         DefaultSpinDuration,
		PayoutDuration:       DefaultPayoutDuration,
		MaxSettleAttempts:    DefaultMaxSettleAttempts,
		PersistTimeout:       DefaultPersistTimeout,
		ColumnDozenExclusive: true,
		HistorySize:          DefaultHistorySize,
		MaxStake:             DefaultMaxStake,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BettingDuration <= 0 {
		c.BettingDuration = d.BettingDuration
	}
	if c.SpinDuration <= 0 {
		c.SpinDuration = d.SpinDuration
	}
	if c.PayoutDuration <= 0 {
		c.PayoutDuration = d.PayoutDuration
	}
	if c.MaxSettleAttempts <= 0 {
		c.MaxSettleAttempts = d.MaxSettleAttempts
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.MaxStake <= 0 || c.MaxStake > MaxStakeLimit {
		c.MaxStake = d.MaxStake
	}
}

// Option configures a Table.
type Option func(*Table)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(t *Table) { t.clock = c }
}

// WithDrawer replaces the crypto drawer.
func WithDrawer(d Drawer) Option {
	return func(t *Table) { t.drawer = d }
}

// WithSettler persists each round's settlement before balances are credited.
func WithSettler(s Settler) Option {
	return func(t *Table) { t.settler = s }
}

// WithNotifier sets the sink for phase changes and player results.
func WithNotifier(n Notifier) Option {
	return func(t *Table) { t.notifier = n }
}

// WithReleaseHook registers fn to be called when a player leaves the ledger,
// either on leave with no open bets or after their bets settle.
func WithReleaseHook(fn func(roomID, playerID string)) Option {
	return func(t *Table) { t.onRelease = fn }
}

type round struct {
	id              string
	phase           Phase
	bettingDeadline time.Time
	endsAt          time.Time
	drawn           *int
}

type outboundEvent struct {
	playerID string // empty means broadcast
	update   GameStateUpdate
	released string
}

// Table is one roulette room. It owns the round state and every seated
// player's ledger; all access goes through the table mutex so a phase check
// and the mutation it guards are never split by a transition.
type Table struct {
	id        string
	cfg       Config
	clock     Clock
	drawer    Drawer
	settler   Settler
	notifier  Notifier
	onRelease func(roomID, playerID string)
	validator *Validator

	mu      sync.Mutex
	round   round
	players map[string]*Player
	recent  []int
	outbox  []outboundEvent
	closed  bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTable creates an idle table. The first Join opens betting.
func NewTable(id string, cfg Config, opts ...Option) *Table {
	cfg.applyDefaults()
	t := &Table{
		id:        id,
		cfg:       cfg,
		clock:     SystemClock(),
		drawer:    CryptoDrawer{},
		validator: &Validator{ColumnDozenExclusive: cfg.ColumnDozenExclusive, MaxStake: cfg.MaxStake},
		round:     round{phase: PhaseIdle},
		players:   make(map[string]*Player),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the room identifier.
func (t *Table) ID() string {
	return t.id
}

// Join seats a player, or reconnects one already seated. A new player starts
// with the given balance; a returning player keeps their ledger.
func (t *Table) Join(playerID, name string, balance int64) (PlayerSnapshot, error) {
	if balance < 0 || balance > MaxSeatBalance {
		return PlayerSnapshot{}, fmt.Errorf("%w: balance out of range", ErrInvalidAmount)
	}

	t.mu.Lock()
	defer t.unlockAndFlush()

	if t.closed {
		return PlayerSnapshot{}, ErrTableClosed
	}

	now := t.clock.Now()
	t.advanceLocked(now)

	p, ok := t.players[playerID]
	if ok {
		p.connected = true
		p.departed = false
		if name != "" {
			p.DisplayName = name
		}
	} else {
		p = newPlayer(playerID, name, balance)
		t.players[playerID] = p
	}

	if t.round.phase == PhaseIdle {
		t.startBettingLocked(now)
		t.signalWake()
	}

	log.Info().
		Str("room_id", t.id).
		Str("player_id", playerID).
		Int64("balance", p.Balance).
		Bool("rejoin", ok).
		Msg("Player joined table")

	return t.snapshotLocked(p, now), nil
}

// Leave disconnects a player. Open bets stay active and are settled normally;
// the player is released once the ledger is empty. It reports whether the
// player was released immediately.
func (t *Table) Leave(playerID string) (bool, error) {
	t.mu.Lock()
	defer t.unlockAndFlush()

	t.advanceLocked(t.clock.Now())

	p, ok := t.players[playerID]
	if !ok {
		return false, ErrPlayerNotFound
	}

	p.connected = false
	if len(p.bets) == 0 {
		t.releaseLocked(playerID)
		return true, nil
	}
	p.departed = true

	log.Info().
		Str("room_id", t.id).
		Str("player_id", playerID).
		Int64("open_bets", p.bets.Total()).
		Msg("Player left with open bets")
	return false, nil
}

// PlaceBet debits amount and adds it to the player's bet on key.
func (t *Table) PlaceBet(playerID string, key BetKey, amount int64) (PlayerSnapshot, error) {
	return t.mutate(playerID, "place_bet", func(p *Player) error {
		return p.placeBet(t.validator, key, amount)
	})
}

// ClearBets refunds all open bets. Calling it on an empty ledger is a no-op.
func (t *Table) ClearBets(playerID string) (PlayerSnapshot, error) {
	return t.mutate(playerID, "clear_bets", func(p *Player) error {
		p.clearBets()
		return nil
	})
}

// UndoBet reverts the most recent place, repeat or double. With nothing to
// undo it is a no-op.
func (t *Table) UndoBet(playerID string) (PlayerSnapshot, error) {
	return t.mutate(playerID, "undo_bet", func(p *Player) error {
		p.undoBet()
		return nil
	})
}

// RepeatBet replays the last bet set cleared or settled.
func (t *Table) RepeatBet(playerID string) (PlayerSnapshot, error) {
	return t.mutate(playerID, "repeat_bet", func(p *Player) error {
		return p.repeatBet(t.validator)
	})
}

// DoubleBet doubles every open bet.
func (t *Table) DoubleBet(playerID string) (PlayerSnapshot, error) {
	return t.mutate(playerID, "double_bet", func(p *Player) error {
		return p.doubleBet(t.validator)
	})
}

func (t *Table) mutate(playerID, op string, fn func(p *Player) error) (PlayerSnapshot, error) {
	t.mu.Lock()
	defer t.unlockAndFlush()

	if t.closed {
		return PlayerSnapshot{}, ErrTableClosed
	}

	// Due transitions run first, so a deadline reached in the same instant
	// as a bet always closes betting before the bet is considered.
	now := t.clock.Now()
	t.advanceLocked(now)

	if t.round.phase != PhaseBetting {
		return PlayerSnapshot{}, ErrWrongPhase
	}
	p, ok := t.players[playerID]
	if !ok {
		return PlayerSnapshot{}, ErrPlayerNotFound
	}

	if err := fn(p); err != nil {
		log.Debug().
			Err(err).
			Str("room_id", t.id).
			Str("player_id", playerID).
			Str("op", op).
			Msg("Bet operation rejected")
		return t.snapshotLocked(p, now), err
	}

	log.Debug().
		Str("room_id", t.id).
		Str("player_id", playerID).
		Str("op", op).
		Int64("balance", p.Balance).
		Int64("total_bet", p.bets.Total()).
		Msg("Bet operation applied")
	return t.snapshotLocked(p, now), nil
}

// Player returns a snapshot of one seated player.
func (t *Table) Player(playerID string) (PlayerSnapshot, error) {
	t.mu.Lock()
	defer t.unlockAndFlush()

	now := t.clock.Now()
	t.advanceLocked(now)

	p, ok := t.players[playerID]
	if !ok {
		return PlayerSnapshot{}, ErrPlayerNotFound
	}
	return t.snapshotLocked(p, now), nil
}

// State returns a view of the current round.
func (t *Table) State() RoundState {
	t.mu.Lock()
	defer t.unlockAndFlush()

	now := t.clock.Now()
	t.advanceLocked(now)

	s := RoundState{
		RoundID:       t.round.id,
		Phase:         t.round.phase,
		PlayerCount:   len(t.players),
		RecentNumbers: append([]int(nil), t.recent...),
	}
	if t.round.phase != PhaseIdle {
		s.SecondsLeft = secondsUntil(now, t.round.endsAt)
	}
	if t.round.drawn != nil {
		s.DrawnNumber = intPtr(*t.round.drawn)
	}
	return s
}

// PlayerCount returns the number of seated players, departed ones included.
func (t *Table) PlayerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.players)
}

// Advance runs every transition that is due at the current clock time.
func (t *Table) Advance() {
	t.mu.Lock()
	defer t.unlockAndFlush()
	t.advanceLocked(t.clock.Now())
}

// Run drives timed transitions until ctx is cancelled or the table is closed.
func (t *Table) Run(ctx context.Context) error {
	timer := time.NewTimer(t.nextWake())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return nil
		case <-t.wake:
		case <-timer.C:
			t.Advance()
		}
		timer.Reset(t.nextWake())
	}
}

// Close stops the run loop. Open bets are discarded with the in-memory
// state; nothing unsettled has been persisted.
func (t *Table) Close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *Table) nextWake() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.round.phase == PhaseIdle {
		return idleWait
	}
	d := t.round.endsAt.Sub(t.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

func (t *Table) signalWake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Table) advanceLocked(now time.Time) {
	for !t.closed && t.round.phase != PhaseIdle && !now.Before(t.round.endsAt) {
		switch t.round.phase {
		case PhaseBetting:
			t.spinLocked(now)
		case PhaseSpinning:
			t.payoutLocked(now)
		case PhasePayout:
			t.startBettingLocked(now)
		}
	}
}

func (t *Table) startBettingLocked(now time.Time) {
	deadline := now.Add(t.cfg.BettingDuration)
	t.round = round{
		id:              uuid.NewString(),
		phase:           PhaseBetting,
		bettingDeadline: deadline,
		endsAt:          deadline,
	}
	for _, p := range t.players {
		p.resetHistory()
	}

	update := GameStateUpdate{
		State: PhaseBetting,
		Time:  intPtr(secondsUntil(now, deadline)),
	}
	if len(t.recent) > 0 {
		update.RecentNumbers = append([]int(nil), t.recent...)
	}
	t.broadcast(update)

	log.Debug().
		Str("room_id", t.id).
		Str("round_id", t.round.id).
		Time("deadline", deadline).
		Msg("Betting opened")
}

func (t *Table) spinLocked(now time.Time) {
	n, err := t.drawLocked()
	if err != nil {
		t.abortLocked(now, err)
		return
	}

	t.round.phase = PhaseSpinning
	t.round.drawn = intPtr(n)
	t.round.bettingDeadline = time.Time{}
	t.round.endsAt = now.Add(t.cfg.SpinDuration)

	t.broadcast(GameStateUpdate{
		State:         PhaseSpinning,
		Time:          intPtr(secondsUntil(now, t.round.endsAt)),
		WinningNumber: intPtr(n),
		WinningColor:  ColorOf(n),
	})

	log.Info().
		Str("room_id", t.id).
		Str("round_id", t.round.id).
		Int("winning_number", n).
		Msg("Betting closed, wheel spinning")
}

func (t *Table) drawLocked() (int, error) {
	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxSettleAttempts; attempt++ {
		n, err := t.safeDraw()
		if err == nil && !ValidNumber(n) {
			err = fmt.Errorf("pocket %d out of range", n)
		}
		if err == nil {
			return n, nil
		}
		lastErr = err
		log.Warn().
			Err(err).
			Str("room_id", t.id).
			Int("attempt", attempt).
			Msg("Draw attempt failed")
	}
	return 0, fmt.Errorf("%w after %d attempts: %w", ErrDrawFailure, t.cfg.MaxSettleAttempts, lastErr)
}

func (t *Table) safeDraw() (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("drawer panicked: %v", r)
		}
	}()
	return t.drawer.Draw()
}

func (t *Table) payoutLocked(now time.Time) {
	drawn := *t.round.drawn

	ids := make([]string, 0, len(t.players))
	for id := range t.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Every credit is computed before any is applied.
	settlements := make(map[string]Settlement, len(ids))
	result := &RoundResult{
		RoundID:       t.round.id,
		RoomID:        t.id,
		WinningNumber: drawn,
		WinningColor:  ColorOf(drawn),
		SettledAt:     now,
	}
	for _, id := range ids {
		p := t.players[id]
		s := Settle(drawn, p.bets)
		settlements[id] = s
		if s.TotalBet == 0 {
			continue
		}
		result.Players = append(result.Players, PlayerResult{
			PlayerID:    id,
			DisplayName: p.DisplayName,
			TotalBet:    s.TotalBet,
			Winnings:    s.Winnings,
			Balance:     p.Balance + s.Winnings,
			Status:      s.Status,
			Bets:        p.bets.Clone(),
		})
	}

	if err := t.persistLocked(result); err != nil {
		t.abortLocked(now, err)
		return
	}

	t.round.phase = PhasePayout
	t.round.endsAt = now.Add(t.cfg.PayoutDuration)
	remaining := secondsUntil(now, t.round.endsAt)

	for _, id := range ids {
		p := t.players[id]
		s := settlements[id]
		p.applySettlement(s)
		if p.connected {
			t.notify(id, GameStateUpdate{
				State:         PhasePayout,
				Time:          intPtr(remaining),
				WinningNumber: intPtr(drawn),
				WinningColor:  ColorOf(drawn),
				TotalWinnings: int64Ptr(s.Winnings),
				NewBalance:    int64Ptr(p.Balance),
				ResultStatus:  s.Status,
			})
		}
	}
	t.releaseDepartedLocked()

	t.recent = append([]int{drawn}, t.recent...)
	if len(t.recent) > t.cfg.HistorySize {
		t.recent = t.recent[:t.cfg.HistorySize]
	}

	log.Info().
		Str("room_id", t.id).
		Str("round_id", t.round.id).
		Int("winning_number", drawn).
		Int("bettors", len(result.Players)).
		Int64("total_bet", result.TotalBet()).
		Int64("total_winnings", result.TotalWinnings()).
		Msg("Round settled")
}

func (t *Table) persistLocked(result *RoundResult) error {
	if t.settler == nil || len(result.Players) == 0 {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxSettleAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.PersistTimeout)
		err := t.settler.SettleRound(ctx, result)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().
			Err(err).
			Str("room_id", t.id).
			Str("round_id", result.RoundID).
			Int("attempt", attempt).
			Msg("Settlement attempt failed")
	}

	if settled, err := t.checkSettledLocked(result.RoundID); settled {
		log.Warn().
			Str("room_id", t.id).
			Str("round_id", result.RoundID).
			Msg("Settlement stored despite failed attempts, paying out")
		return nil
	} else if err != nil {
		log.Error().
			Err(err).
			Str("room_id", t.id).
			Str("round_id", result.RoundID).
			Msg("Settlement state unknown, round needs reconciliation")
	}
	return fmt.Errorf("%w: settlement not persisted after %d attempts: %w", ErrDrawFailure, t.cfg.MaxSettleAttempts, lastErr)
}

// checkSettledLocked asks the settler whether the round reached storage.
func (t *Table) checkSettledLocked(roundID string) (bool, error) {
	checker, ok := t.settler.(SettlementChecker)
	if !ok {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.PersistTimeout)
	defer cancel()
	return checker.IsSettled(ctx, roundID)
}

// abortLocked refunds every open bet and opens a fresh betting phase.
func (t *Table) abortLocked(now time.Time, cause error) {
	log.Error().
		Err(cause).
		Str("room_id", t.id).
		Str("round_id", t.round.id).
		Msg("Round aborted, refunding all bets")

	for _, p := range t.players {
		p.refundAll()
	}
	t.releaseDepartedLocked()
	t.startBettingLocked(now)

	remaining := secondsUntil(now, t.round.endsAt)
	for id, p := range t.players {
		if p.connected {
			t.notify(id, GameStateUpdate{
				State:      PhaseBetting,
				Time:       intPtr(remaining),
				NewBalance: int64Ptr(p.Balance),
			})
		}
	}
}

func (t *Table) releaseDepartedLocked() {
	for id, p := range t.players {
		if p.departed && len(p.bets) == 0 {
			t.releaseLocked(id)
		}
	}
}

func (t *Table) releaseLocked(playerID string) {
	delete(t.players, playerID)
	t.outbox = append(t.outbox, outboundEvent{released: playerID})
}

func (t *Table) broadcast(update GameStateUpdate) {
	t.outbox = append(t.outbox, outboundEvent{update: update})
}

func (t *Table) notify(playerID string, update GameStateUpdate) {
	t.outbox = append(t.outbox, outboundEvent{playerID: playerID, update: update})
}

func (t *Table) snapshotLocked(p *Player, now time.Time) PlayerSnapshot {
	s := PlayerSnapshot{
		PlayerID:    p.ID,
		DisplayName: p.DisplayName,
		Balance:     p.Balance,
		Bets:        p.bets.Clone(),
		TotalBet:    p.bets.Total(),
		Phase:       t.round.phase,
		RoundID:     t.round.id,
	}
	if t.round.phase != PhaseIdle {
		s.SecondsLeft = secondsUntil(now, t.round.endsAt)
	}
	return s
}

// unlockAndFlush releases the lock and then delivers queued events, so
// notifier and release hooks never run under the table mutex.
func (t *Table) unlockAndFlush() {
	events := t.outbox
	t.outbox = nil
	t.mu.Unlock()

	for _, ev := range events {
		switch {
		case ev.released != "":
			if t.onRelease != nil {
				t.onRelease(t.id, ev.released)
			}
		case t.notifier == nil:
		case ev.playerID == "":
			t.notifier.Broadcast(t.id, ev.update)
		default:
			t.notifier.Notify(t.id, ev.playerID, ev.update)
		}
	}
}
