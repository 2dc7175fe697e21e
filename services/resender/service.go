package resender

import (
	"bytes"
	"context"
	"net/smtp"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/archiveworks/mailarch/config"
	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/models"
	"github.com/archiveworks/mailarch/internal/repository"
)

// Service drains the resend queue: archived raw messages requested
// for redelivery to a single recipient. Delivery is attempted
// exactly once; the queue row is removed whether or not the relay
// accepted the mail, so a broken address can never wedge the queue.
type Service struct {
	cfg   *config.SMTPConfig
	log   logger.Logger
	repos *repository.Repositories
}

func New(cfg *config.SMTPConfig, log logger.Logger, repos *repository.Repositories) *Service {
	return &Service{cfg: cfg, log: log, repos: repos}
}

// RunOnce processes queued resends until the queue is empty,
// returning how many rows it consumed.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	processed := 0
	for {
		resend, msg, err := s.repos.Resend.NextPending(ctx)
		if err != nil {
			return processed, err
		}
		if resend == nil {
			return processed, nil
		}

		if msg == nil {
			s.log.Warnf("resend request %d points at a missing message, dropping it", resend.ID)
		} else {
			s.deliver(msg, resend.SendTo)
		}

		if err := s.repos.Resend.Delete(ctx, resend.ID); err != nil {
			return processed, err
		}
		processed++
	}
}

// Run polls the queue until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(s.cfg.PollInterval) * time.Second)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) deliver(msg *models.Message, sendTo string) {
	// Sanity-read the stored raw text before handing it to the
	// relay. A message that no longer parses is still sent; the
	// recipient asked for the bytes we have.
	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.RawTxt))
	if err != nil {
		s.log.Warnf("raw text of message %s no longer parses, sending anyway: %v", msg.MessageID, err)
	} else {
		s.log.Infof("resending %q from %s to %s", env.GetHeader("Subject"), env.GetHeader("From"), sendTo)
	}

	err = smtp.SendMail(s.cfg.Server, nil, s.cfg.Resender, []string{sendTo}, msg.RawTxt)
	if err != nil {
		s.log.Errorf("error sending message %s to %s: %v", msg.MessageID, sendTo, err)
	}
}
