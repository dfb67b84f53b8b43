package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/agora-social/agora-cli/pkg/call"
	"github.com/agora-social/agora-cli/pkg/call/media"
	"github.com/agora-social/agora-cli/pkg/call/peer"
	"github.com/agora-social/agora-cli/pkg/channel"
	clierrors "github.com/agora-social/agora-cli/pkg/errors"
	"github.com/agora-social/agora-cli/pkg/formatter"
	"github.com/agora-social/agora-cli/pkg/logger"
	"github.com/agora-social/agora-cli/pkg/output"
	"github.com/agora-social/agora-cli/pkg/prompter"
)

// CallService drives the call coordinator from the terminal.
type CallService struct {
	coord    *call.Coordinator
	prompt   *prompter.Prompter
	changes  chan call.Session
	incoming chan call.Session
}

// NewCallService captures through the platform media source and connects
// peers with pion, negotiating the source's codecs.
func NewCallService(ch channel.Channel, p *prompter.Prompter) (*CallService, error) {
	src, err := media.NewSource(media.ConfigFromSettings())
	if err != nil {
		return nil, clierrors.MediaError(err)
	}

	pcfg := peer.ConfigFromSettings()
	pcfg.RegisterCodecs = src.RegisterCodecs
	factory, err := peer.NewFactory(pcfg)
	if err != nil {
		return nil, clierrors.PeerError(err)
	}

	return NewCallServiceWith(call.Config{Channel: ch, Media: src, Peers: factory}, p)
}

// NewCallServiceWith builds the service over explicit collaborators and
// attaches the coordinator to the channel.
func NewCallServiceWith(cfg call.Config, p *prompter.Prompter) (*CallService, error) {
	coord, err := call.NewCoordinator(cfg)
	if err != nil {
		return nil, err
	}

	s := &CallService{
		coord:    coord,
		prompt:   p,
		changes:  make(chan call.Session, 32),
		incoming: make(chan call.Session, 4),
	}
	coord.OnChange(func(sn call.Session) {
		select {
		case s.changes <- sn:
		default:
			logger.Debug("Call change dropped", "call_id", sn.ID, "phase", sn.Phase)
		}
	})
	coord.OnIncoming(func(sn call.Session) {
		select {
		case s.incoming <- sn:
		default:
			logger.Warn("Incoming call dropped", "call_id", sn.ID, "from", sn.SenderID)
		}
	})
	coord.Attach()
	return s, nil
}

// Coordinator returns the underlying coordinator.
func (s *CallService) Coordinator() *call.Coordinator {
	return s.coord
}

// Close hangs up any call and removes the channel listeners.
func (s *CallService) Close() {
	s.coord.Detach()
}

// Place calls req.ReceiverID and prints every phase until the call ends.
// Cancelling ctx hangs up.
func (s *CallService) Place(ctx context.Context, req call.DialRequest) (call.Session, error) {
	logger.Debug("Placing call", "to", req.ReceiverID, "video", req.IsVideoCall)

	sn, err := s.coord.Dial(ctx, req)
	if err != nil {
		if last, ok := s.coord.LastEnded(); ok {
			output.PrintWarning("%s", formatter.CallStatus(last, s.coord.LocalUserID()))
		}
		return sn, err
	}
	return s.follow(ctx, sn.ID, call.PhaseIdle)
}

// Listen waits for incoming calls until ctx is cancelled. Each call is
// answered with a prompt unless autoAccept is set. Listen is the only reader
// of the prompter while it runs; lines typed while nothing rings are dropped.
func (s *CallService) Listen(ctx context.Context, autoAccept bool) error {
	output.PrintInfo("Waiting for calls as %s. Press Ctrl+C to stop", s.coord.LocalUserID())

	var lines <-chan string
	if !autoAccept && s.prompt != nil {
		lines = s.prompt.Lines(ctx.Done())
	}
	inputClosed := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.changes:
			// phases of calls already handled
		case line, ok := <-lines:
			if !ok {
				lines, inputClosed = nil, true
				continue
			}
			logger.Debug("Input ignored, no call ringing", "line", line)
		case sn := <-s.incoming:
			in := lines
			if inputClosed {
				in = closedLines
			}
			if err := s.answer(ctx, sn, autoAccept, in); err != nil {
				return err
			}
		}
	}
}

// closedLines stands in for an exhausted input stream.
var closedLines = func() <-chan string {
	ch := make(chan string)
	close(ch)
	return ch
}()

// errCallCancelled reports a call that ended remotely while it rang.
var errCallCancelled = errors.New("call cancelled by caller")

func (s *CallService) answer(ctx context.Context, sn call.Session, autoAccept bool, lines <-chan string) error {
	local := s.coord.LocalUserID()
	output.PrintInfo("%s", formatter.CallStatus(sn, local))

	accept := autoAccept
	if !accept {
		var err error
		accept, err = s.confirm(ctx, sn.ID, lines)
		if errors.Is(err, errCallCancelled) {
			output.PrintWarning("Call from %s cancelled", sn.RemoteUserID(local))
			return nil
		}
		if err != nil {
			_ = s.coord.Reject()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	if !accept {
		if err := s.coord.Reject(); err != nil && !errors.Is(err, call.ErrNoActiveCall) {
			return err
		}
		output.PrintInfo("Rejected call from %s", sn.RemoteUserID(local))
		return nil
	}

	if _, err := s.coord.Accept(ctx); err != nil {
		output.PrintError("%s", clierrors.FormatError(err))
		return nil
	}
	_, err := s.follow(ctx, sn.ID, call.PhaseRinging)
	return err
}

// confirm asks whether to accept call id and waits for the answer on lines.
// A remote cancel while the prompt is open returns errCallCancelled.
func (s *CallService) confirm(ctx context.Context, id string, lines <-chan string) (bool, error) {
	if lines == nil {
		return false, clierrors.ValidationError("prompt", "no terminal to answer the call on")
	}

	s.prompt.Ask("Accept? (y/n) ")
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return false, io.EOF
			}
			answer := strings.ToLower(strings.TrimSpace(line))
			return answer == "y" || answer == "yes", nil
		case sn := <-s.changes:
			if sn.ID == id && sn.Phase == call.PhaseEnded {
				return false, errCallCancelled
			}
		}
	}
}

// follow prints phase changes of call id until it ends.
func (s *CallService) follow(ctx context.Context, id string, phase call.Phase) (call.Session, error) {
	local := s.coord.LocalUserID()
	for {
		select {
		case <-ctx.Done():
			if err := s.coord.Hangup(); err != nil && !errors.Is(err, call.ErrNoActiveCall) {
				logger.Warn("Hangup failed", "call_id", id, "error", err)
			}
			if last, ok := s.coord.LastEnded(); ok && last.ID == id {
				output.PrintInfo("%s", formatter.CallStatus(last, local))
				return last, nil
			}
			return s.coord.Snapshot(), nil
		case sn := <-s.changes:
			if sn.ID != id || sn.Phase == phase {
				continue
			}
			phase = sn.Phase
			output.PrintInfo("%s", formatter.CallStatus(sn, local))
			if phase == call.PhaseEnded {
				return sn, endError(sn.EndReason)
			}
		}
	}
}

// endError reports ends caused by local failures. Hangups and rejects by
// either side are normal outcomes.
func endError(reason call.EndReason) error {
	switch reason {
	case call.EndMediaFailed:
		return clierrors.MediaError(fmt.Errorf("call ended: %s", reason))
	case call.EndPeerFailed:
		return clierrors.PeerError(fmt.Errorf("call ended: %s", reason))
	case call.EndChannelError:
		return clierrors.ChannelError("Call ended", fmt.Errorf("%s", reason))
	}
	return nil
}
