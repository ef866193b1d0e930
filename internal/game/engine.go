package game

import (
	"fmt"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"github.com/hanabi-live/hanabi-server-go/internal/game/rules"
)

// Outcome describes the effect of one successful move.
type Outcome struct {
	Turn         int          // Turn the move was made on
	Entries      []LogEntry   // Log entries the move appended
	Status       Status       // Status after the move
	EndCondition EndCondition // Set once Status is StatusEnded
}

// Ended reports whether the move finished the game.
func (o *Outcome) Ended() bool {
	return o.Status == StatusEnded
}

// Engine applies moves to a single game. It is not safe for concurrent use;
// its owner serializes every call.
type Engine struct {
	state   *GameState
	variant Variant
	checker *rules.LegalityChecker
	events  *rules.EventBus
	logger  *zap.Logger
}

// NewEngine deals a new game for the given players. Options.Seed picks the
// deck order; an empty seed gets a random one.
func NewEngine(players []string, opts Options, logger *zap.Logger) (*Engine, error) {
	resolved, err := opts.Resolve(len(players))
	if err != nil {
		return nil, err
	}
	if resolved.Seed == "" {
		resolved.Seed = NewSeed()
	}
	variant, _ := LookupVariant(resolved.VariantName)
	return NewEngineWithDeck(players, resolved, NewDeck(variant, resolved.MaxRank, resolved.Seed), logger)
}

// NewEngineWithDeck deals a new game from a fixed deck order.
func NewEngineWithDeck(players []string, opts Options, deck []CardIdentity, logger *zap.Logger) (*Engine, error) {
	resolved, err := opts.Resolve(len(players))
	if err != nil {
		return nil, err
	}
	variant, _ := LookupVariant(resolved.VariantName)

	if len(deck) < resolved.HandSize*len(players) {
		return nil, fmt.Errorf("deck of %d cards cannot deal %d hands of %d", len(deck), len(players), resolved.HandSize)
	}
	for i, id := range deck {
		if id.SuitIndex < 0 || id.SuitIndex >= variant.NumSuits() || id.Rank < 1 || id.Rank > resolved.MaxRank {
			return nil, fmt.Errorf("card %d has invalid identity %+v", i, id)
		}
	}

	turns, err := rules.NewTurnOrder(len(players), 0)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	state := &GameState{
		Players: append([]string(nil), players...),
		Options: resolved,
		Deck:    make([]CardState, len(deck)),
		Hands:   make([][]int, len(players)),
		Discard: []int{},
		Stacks:  make([][]int, variant.NumSuits()),
		Clues:   resolved.MaxClues,
		Strikes: []Strike{},
		Turns:   turns,
		Status:  StatusLobby,
	}
	for order, id := range deck {
		state.Deck[order] = newCardState(order, id, variant.NumSuits(), resolved.MaxRank)
	}
	for i := range state.Hands {
		state.Hands[i] = []int{}
	}
	for i := range state.Stacks {
		state.Stacks[i] = []int{}
	}

	e := &Engine{
		state:   state,
		variant: variant,
		checker: rules.NewLegalityChecker(legalityView{g: state}),
		events:  rules.NewEventBus(),
		logger:  logger,
	}

	for player := range players {
		for i := 0; i < resolved.HandSize; i++ {
			e.draw(player)
		}
	}
	state.Status = StatusRunning
	e.updateMaxScore()
	e.updatePace()

	logger.Debug("dealt game",
		zap.Int("players", len(players)),
		zap.String("variant", variant.Name),
		zap.Int("deck_size", len(deck)),
	)
	return e, nil
}

// Events returns the bus the engine publishes rule events on.
func (e *Engine) Events() *rules.EventBus {
	return e.events
}

// Variant returns the variant being played.
func (e *Engine) Variant() Variant {
	return e.variant
}

// Status returns the current game status.
func (e *Engine) Status() Status {
	return e.state.Status
}

// NumCards returns the size of the deck the game was dealt from.
func (e *Engine) NumCards() int {
	return len(e.state.Deck)
}

// State returns a deep copy of the current state.
func (e *Engine) State() (GameState, error) {
	var out GameState
	if err := copier.CopyWithOption(&out, e.state, copier.Option{DeepCopy: true}); err != nil {
		return GameState{}, fmt.Errorf("failed to copy game state: %w", err)
	}
	return out, nil
}

// Apply validates and applies a move made by the player in the given seat.
// Illegal moves return a *Rejection and leave the state untouched.
func (e *Engine) Apply(player int, m Move) (*Outcome, error) {
	if m == nil {
		return nil, &Rejection{Reason: rules.ReasonUnknownMove, Message: "That is not a valid action."}
	}
	result := e.checker.Check(moveInfo(player, m))
	if !result.Legal {
		e.logger.Debug("rejected move",
			zap.Int("player", player),
			zap.String("kind", m.Kind().String()),
			zap.String("reason", string(result.Reason)),
		)
		return nil, &Rejection{Reason: result.Reason, Message: result.Message}
	}

	s := e.state
	first := len(s.Log)
	turn := s.Turns.Turn

	switch mv := m.(type) {
	case ClueMove:
		e.giveClue(player, mv)
	case PlayMove:
		e.playCard(player, mv.Order)
	case DiscardMove:
		e.discardCard(player, mv.Order)
	case ConcedeMove:
		e.finish(EndConditionConceded, player)
	case TimeLimitMove:
		e.finish(EndConditionTimeout, s.Turns.Current)
	case IdleLimitMove:
		e.finish(EndConditionIdleTimeout, -1)
	}
	s.Moves = append(s.Moves, RecordMove(player, m))

	if m.Kind().TakesTurn() {
		e.endTurn()
	}
	e.updatePace()

	return &Outcome{
		Turn:         turn,
		Entries:      append([]LogEntry(nil), s.Log[first:]...),
		Status:       s.Status,
		EndCondition: s.EndCondition,
	}, nil
}

func (e *Engine) appendLog(entry LogEntry) {
	entry.Turn = e.state.Turns.Turn
	e.state.Log = append(e.state.Log, entry)
}

func (e *Engine) addClue() {
	if e.state.Clues < e.state.Options.MaxClues {
		e.state.Clues++
	}
}

func (e *Engine) giveClue(player int, mv ClueMove) {
	s := e.state
	turn := s.Turns.Turn
	s.Clues--

	touched := []int{}
	for _, order := range s.Hands[mv.Target] {
		card := &s.Deck[order]
		positive := e.variant.ClueTouches(mv.Clue, card.SuitIndex, card.Rank)
		card.applyClue(e.variant, mv.Clue, positive)
		if positive {
			touched = append(touched, order)
			if !card.Clued {
				card.Clued = true
				card.SegmentFirstClued = turn
			}
		}
	}

	clue := mv.Clue
	e.appendLog(LogEntry{
		Kind:      LogClue,
		Player:    player,
		Target:    mv.Target,
		Clue:      &clue,
		List:      touched,
		Order:     -1,
		SuitIndex: Hidden,
		Rank:      Hidden,
		Text:      s.clueText(player, mv.Target, mv.Clue, len(touched)),
	})
	evt := rules.NewEventWithAmount(rules.EventClueGiven, turn, player, len(touched))
	evt.Target = mv.Target
	e.events.Publish(evt)
}

func (e *Engine) removeFromHand(player, order int) int {
	s := e.state
	slot := s.SlotOf(player, order)
	hand := s.Hands[player]
	s.Hands[player] = append(hand[:slot:slot], hand[slot+1:]...)
	return slot
}

func (e *Engine) playable(card CardState) bool {
	rank, _ := e.nextRank(card.SuitIndex)
	return card.Rank == rank
}

func (e *Engine) playCard(player, order int) {
	s := e.state
	turn := s.Turns.Turn
	slot := e.removeFromHand(player, order)
	card := &s.Deck[order]
	card.Holder = -1

	if e.playable(*card) {
		card.Location = LocationStack
		card.SegmentPlayed = turn
		s.Stacks[card.SuitIndex] = append(s.Stacks[card.SuitIndex], order)
		s.Score++
		e.appendLog(LogEntry{
			Kind:      LogPlay,
			Player:    player,
			Target:    -1,
			Order:     order,
			SuitIndex: card.SuitIndex,
			Rank:      card.Rank,
			Text:      fmt.Sprintf("%s plays %s from %s", s.Players[player], s.cardName(order), slotText(slot)),
		})
		e.events.Publish(rules.NewCardEvent(rules.EventCardPlayed, turn, player, order))

		if len(s.Stacks[card.SuitIndex]) == s.Options.MaxRank {
			e.events.Publish(rules.NewCardEvent(rules.EventStackComplete, turn, player, order))
			if !s.Options.NoStackClueRefund {
				e.addClue()
			}
		}
	} else {
		card.Location = LocationDiscard
		card.Misplayed = true
		card.SegmentDiscarded = turn
		s.Discard = append(s.Discard, order)
		s.Strikes = append(s.Strikes, Strike{Order: order, Turn: turn})
		e.appendLog(LogEntry{
			Kind:      LogPlay,
			Player:    player,
			Target:    -1,
			Order:     order,
			SuitIndex: card.SuitIndex,
			Rank:      card.Rank,
			Failed:    true,
			Text:      fmt.Sprintf("%s fails to play %s from %s", s.Players[player], s.cardName(order), slotText(slot)),
		})
		e.appendLog(LogEntry{
			Kind:      LogStrike,
			Player:    player,
			Target:    -1,
			Order:     order,
			SuitIndex: card.SuitIndex,
			Rank:      card.Rank,
			Text:      fmt.Sprintf("Strike %d of %d", len(s.Strikes), s.Options.MaxStrikes),
		})
		e.events.Publish(rules.NewCardEvent(rules.EventCardMisplayed, turn, player, order))
		e.events.Publish(rules.NewEventWithAmount(rules.EventStrike, turn, player, len(s.Strikes)))
	}

	e.updateMaxScore()
	e.draw(player)
}

func (e *Engine) discardCard(player, order int) {
	s := e.state
	turn := s.Turns.Turn
	slot := e.removeFromHand(player, order)
	card := &s.Deck[order]
	card.Holder = -1
	card.Location = LocationDiscard
	card.SegmentDiscarded = turn
	s.Discard = append(s.Discard, order)
	e.addClue()

	e.appendLog(LogEntry{
		Kind:      LogDiscard,
		Player:    player,
		Target:    -1,
		Order:     order,
		SuitIndex: card.SuitIndex,
		Rank:      card.Rank,
		Text:      fmt.Sprintf("%s discards %s from %s", s.Players[player], s.cardName(order), slotText(slot)),
	})
	e.events.Publish(rules.NewCardEvent(rules.EventCardDiscarded, turn, player, order))

	e.updateMaxScore()
	e.draw(player)
}

func (e *Engine) draw(player int) {
	s := e.state
	if s.DeckIndex >= len(s.Deck) {
		return
	}
	turn := s.Turns.Turn
	order := s.DeckIndex
	s.DeckIndex++

	card := &s.Deck[order]
	card.Location = LocationHand
	card.Holder = player
	card.SegmentDrawn = turn
	s.Hands[player] = append([]int{order}, s.Hands[player]...)

	e.appendLog(LogEntry{
		Kind:      LogDraw,
		Player:    player,
		Target:    -1,
		Order:     order,
		SuitIndex: card.SuitIndex,
		Rank:      card.Rank,
		Text:      fmt.Sprintf("%s draws %s", s.Players[player], s.cardName(order)),
	})
	e.events.Publish(rules.NewCardEvent(rules.EventCardDrawn, turn, player, order))

	if s.DeckIndex == len(s.Deck) && s.Status == StatusRunning {
		if s.Turns.StartFinalRound(s.Options.ExtraTurns) {
			e.events.Publish(rules.NewEventWithAmount(rules.EventFinalRound, turn, player, s.Turns.EndTurn))
		}
	}
}

// endTurn passes the turn on and checks whether the game is over.
// Strikeout is checked before victory, victory before running out of cards.
// A game that can no longer gain a point ends like one that ran out of cards.
func (e *Engine) endTurn() {
	s := e.state
	s.Turns.Advance()

	switch {
	case len(s.Strikes) >= s.Options.MaxStrikes:
		e.finish(EndConditionStrikeout, -1)
		return
	case e.allStacksComplete():
		e.finish(EndConditionVictory, -1)
		return
	case s.Turns.FinalRoundComplete():
		e.finish(EndConditionOutOfCards, -1)
		return
	case s.Score == s.MaxScore:
		e.logger.Debug("maximum score reached", zap.Int("score", s.Score))
		e.finish(EndConditionOutOfCards, -1)
		return
	case !e.anyCardPlayable():
		e.logger.Debug("no remaining card can be played")
		e.finish(EndConditionOutOfCards, -1)
		return
	}

	e.appendLog(LogEntry{
		Kind:     LogStatus,
		Player:   -1,
		Target:   -1,
		Order:    -1,
		Clues:    s.Clues,
		Score:    s.Score,
		MaxScore: s.MaxScore,
	})
	e.appendLog(LogEntry{
		Kind:   LogTurn,
		Player: s.Turns.Current,
		Target: -1,
		Order:  -1,
		Text:   fmt.Sprintf("It is now %s's turn", s.Players[s.Turns.Current]),
	})
	e.events.Publish(rules.NewEvent(rules.EventTurnBegin, s.Turns.Turn, s.Turns.Current))
}

func (e *Engine) allStacksComplete() bool {
	for _, stack := range e.state.Stacks {
		if len(stack) < e.state.Options.MaxRank {
			return false
		}
	}
	return true
}

// anyCardPlayable reports whether a card that some unfinished stack needs
// next is still in a hand or the deck.
func (e *Engine) anyCardPlayable() bool {
	for suit, stack := range e.state.Stacks {
		if len(stack) >= e.state.Options.MaxRank {
			continue
		}
		if rank, _ := e.nextRank(suit); e.rankAlive(suit, rank) {
			return true
		}
	}
	return false
}

func (e *Engine) finish(cond EndCondition, player int) {
	s := e.state
	s.Status = StatusEnded
	s.EndCondition = cond

	var text string
	switch cond {
	case EndConditionStrikeout:
		text = "Players lose with three strikes!"
	case EndConditionConceded:
		text = fmt.Sprintf("%s terminated the game!", s.Players[player])
	case EndConditionTimeout:
		text = fmt.Sprintf("%s ran out of time!", s.Players[player])
	case EndConditionIdleTimeout:
		text = "Players were idle for too long."
	default:
		text = fmt.Sprintf("Players score %d points.", s.Score)
	}
	if cond == EndConditionStrikeout && s.Options.MaxStrikes != 3 {
		text = fmt.Sprintf("Players lose with %d strikes!", s.Options.MaxStrikes)
	}

	e.appendLog(LogEntry{
		Kind:         LogGameOver,
		Player:       player,
		Target:       -1,
		Order:        -1,
		Score:        s.Score,
		MaxScore:     s.MaxScore,
		EndCondition: cond.String(),
		Text:         text,
	})
	e.events.Publish(rules.NewEventWithAmount(rules.EventGameOver, s.Turns.Turn, player, s.Score))
	e.logger.Info("game over",
		zap.String("end_condition", cond.String()),
		zap.Int("score", s.Score),
		zap.Int("turn", s.Turns.Turn),
	)
}
