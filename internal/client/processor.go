package client

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/andersfylling/slipstream/internal/protocol"
	"github.com/andersfylling/slipstream/internal/wire"
)

// Processor deserializes received messages and routes them into the
// dispatcher's typed queues. Updates containing the owned entity are
// duplicated onto the player queue; every update also feeds the NPC queue,
// where the NPC system skips the owned entity itself.
type Processor struct {
	dispatcher *Dispatcher
	log        zerolog.Logger

	// playerEntity is the owned entity ID once known; zero until the
	// connection response has been processed.
	playerEntity atomic.Uint32
}

// NewProcessor creates a message processor feeding the given dispatcher.
func NewProcessor(dispatcher *Dispatcher, log zerolog.Logger) *Processor {
	return &Processor{
		dispatcher: dispatcher,
		log:        log.With().Str("component", "messageProcessor").Logger(),
	}
}

// SetPlayerEntity tells the processor which entity the player owns.
func (p *Processor) SetPlayerEntity(id protocol.EntityID) {
	p.playerEntity.Store(uint32(id))
}

// ProcessMessage decodes one message record and pushes the resulting events.
// Any decode failure is a framing error for the connection.
func (p *Processor) ProcessMessage(msgType protocol.MsgType, body []byte) error {
	switch msgType {
	case protocol.MsgConnectionResponse:
		response, err := protocol.DecodeConnectionResponse(body)
		if err != nil {
			return errors.Wrap(wire.ErrBodyParseFailed, err.Error())
		}
		p.dispatcher.ConnectionResponses <- response

	case protocol.MsgEntityUpdate:
		update, err := protocol.DecodeEntityUpdate(body)
		if err != nil {
			return errors.Wrap(wire.ErrBodyParseFailed, err.Error())
		}
		if p.containsPlayer(update) {
			p.dispatcher.PlayerUpdates <- update
		}
		p.dispatcher.NpcUpdates <- NpcUpdate{Type: NpcDataUpdate, Tick: update.Tick, Update: update}

	case protocol.MsgExplicitConfirmation:
		confirmation, err := protocol.DecodeExplicitConfirmation(body)
		if err != nil {
			return errors.Wrap(wire.ErrBodyParseFailed, err.Error())
		}
		p.dispatcher.NpcUpdates <- NpcUpdate{Type: NpcExplicitConfirmation, Tick: confirmation.Tick}

	case protocol.MsgMessageDropInfo:
		drop, err := protocol.DecodeMessageDropInfo(body)
		if err != nil {
			return errors.Wrap(wire.ErrBodyParseFailed, err.Error())
		}
		p.log.Warn().Uint32("tick", drop.Tick).Msg("server dropped one of our input messages")
		p.dispatcher.Drops <- drop

	default:
		return errors.Wrapf(wire.ErrBadMessageType, "unexpected %s from server", msgType)
	}
	return nil
}

func (p *Processor) containsPlayer(update protocol.EntityUpdate) bool {
	player := protocol.EntityID(p.playerEntity.Load())
	if player == 0 {
		return false
	}
	for i := range update.Entities {
		if update.Entities[i].Entity == player {
			return true
		}
	}
	return false
}
