package listsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/archiveworks/mailarch/config"
	"github.com/archiveworks/mailarch/internal/logger"
	"github.com/archiveworks/mailarch/internal/models"
	"github.com/archiveworks/mailarch/internal/repository"
	"github.com/archiveworks/mailarch/internal/tracing"
)

// Document is the membership feed served by the website: the full
// set of list groups and lists the archive should know about.
type Document struct {
	Groups []GroupInfo `json:"groups"`
	Lists  []ListInfo  `json:"lists"`
}

type GroupInfo struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	SortKey int    `json:"sortkey"`
}

type ListInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	GroupID     int    `json:"groupid"`
	Active      bool   `json:"active"`
	ShortDesc   string `json:"shortdesc"`
	Description string `json:"description"`
}

// Service mirrors list metadata from the membership feed into the
// archive. Sync only ever adds and updates: a list gone from the
// feed keeps its archive, it just stops receiving mail.
type Service struct {
	cfg    *config.ListSyncConfig
	log    logger.Logger
	repos  *repository.Repositories
	client *http.Client
}

func New(cfg *config.ListSyncConfig, log logger.Logger, repos *repository.Repositories) *Service {
	return &Service{
		cfg:    cfg,
		log:    log,
		repos:  repos,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// RunOnce fetches the feed and applies it.
func (s *Service) RunOnce(ctx context.Context) error {
	span, ctx := tracing.StartSpanFromContext(ctx, "ListSyncService.RunOnce")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if s.cfg.URL == "" {
		return errors.New("list sync url is not configured")
	}

	doc, err := s.fetch(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if err := s.syncGroups(ctx, doc.Groups); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.syncLists(ctx, doc.Lists); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// Schedule registers the periodic sync on the given cron runner.
func (s *Service) Schedule(ctx context.Context, c *cron.Cron) error {
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Errorf("list sync failed: %v", err)
		}
	})
	return errors.Wrap(err, "scheduling list sync")
}

func (s *Service) fetch(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building list sync request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching list document")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("list sync endpoint returned status %d", resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding list document")
	}
	return &doc, nil
}

func (s *Service) syncGroups(ctx context.Context, incoming []GroupInfo) error {
	existing, err := s.repos.Lists.GetAllGroups(ctx)
	if err != nil {
		return err
	}
	toSave, notes := planGroupSync(existing, incoming)
	for _, note := range notes {
		s.log.Info(note)
	}
	for i := range toSave {
		if err := s.repos.Lists.SaveGroup(ctx, &toSave[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) syncLists(ctx context.Context, incoming []ListInfo) error {
	existing, err := s.repos.Lists.GetAll(ctx)
	if err != nil {
		return err
	}
	toSave, notes := planListSync(existing, incoming)
	for _, note := range notes {
		s.log.Info(note)
	}
	for i := range toSave {
		if err := s.repos.Lists.SaveList(ctx, &toSave[i]); err != nil {
			return err
		}
	}
	return nil
}

// planGroupSync computes the group rows to upsert plus human
// readable notes on what changed. Groups absent from the feed are
// left alone.
func planGroupSync(existing []models.ListGroup, incoming []GroupInfo) ([]models.ListGroup, []string) {
	current := make(map[int]models.ListGroup, len(existing))
	for _, g := range existing {
		current[g.GroupID] = g
	}

	var toSave []models.ListGroup
	var notes []string
	for _, in := range incoming {
		want := models.ListGroup{GroupID: in.ID, GroupName: in.Name, SortKey: in.SortKey}
		have, ok := current[in.ID]
		if !ok {
			notes = append(notes, fmt.Sprintf("adding group %s", in.Name))
			toSave = append(toSave, want)
			continue
		}
		if have == want {
			continue
		}
		if have.GroupName != want.GroupName {
			notes = append(notes, fmt.Sprintf("group %d renamed from %s to %s", in.ID, have.GroupName, want.GroupName))
		}
		if have.SortKey != want.SortKey {
			notes = append(notes, fmt.Sprintf("group %s sortkey changed from %d to %d", in.Name, have.SortKey, want.SortKey))
		}
		toSave = append(toSave, want)
	}
	return toSave, notes
}

func planListSync(existing []models.List, incoming []ListInfo) ([]models.List, []string) {
	current := make(map[int]models.List, len(existing))
	for _, l := range existing {
		current[l.ListID] = l
	}

	var toSave []models.List
	var notes []string
	for _, in := range incoming {
		want := models.List{
			ListID:      in.ID,
			ListName:    in.Name,
			ShortDesc:   in.ShortDesc,
			Description: in.Description,
			Active:      in.Active,
			GroupID:     in.GroupID,
		}
		have, ok := current[in.ID]
		if !ok {
			notes = append(notes, fmt.Sprintf("adding list %s", in.Name))
			toSave = append(toSave, want)
			continue
		}
		if have == want {
			continue
		}
		if have.ListName != want.ListName {
			notes = append(notes, fmt.Sprintf("list %d renamed from %s to %s", in.ID, have.ListName, want.ListName))
		}
		if have.Active != want.Active {
			notes = append(notes, fmt.Sprintf("list %s active changed from %t to %t", in.Name, have.Active, want.Active))
		}
		toSave = append(toSave, want)
	}
	return toSave, notes
}
