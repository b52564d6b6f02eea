package cli

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/message"

	"github.com/roach88/linkctl/internal/api"
	"github.com/roach88/linkctl/internal/apperr"
	"github.com/roach88/linkctl/internal/validate"
)

// ShortenOptions holds flags for the shorten command.
type ShortenOptions struct {
	*RootOptions
	Code    string
	Expires string
	Public  bool
}

// ShortenResult is the JSON output of shorten.
type ShortenResult struct {
	api.Link
	ShortURL string `json:"short_url"`
}

// NewShortenCommand creates the shorten command.
func NewShortenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShortenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "shorten <url>",
		Short: "Create a short link",
		Long: `Create a short link. When logged in the link is owned by your account;
otherwise, or with --public, it is created anonymously.

--expires takes a duration from now (72h) or a date (2025-12-31 or RFC 3339).

Example:
  linkctl shorten https://go.dev/doc/effective_go
  linkctl shorten https://go.dev --code godev --expires 720h`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				return runShorten(ctx, a, opts, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&opts.Code, "code", "", "custom short code, 3 to 8 letters or digits")
	cmd.Flags().StringVar(&opts.Expires, "expires", "", "expiry as a duration or date")
	cmd.Flags().BoolVar(&opts.Public, "public", false, "create anonymously even when logged in")

	return cmd
}

func runShorten(ctx context.Context, a *app, opts *ShortenOptions, rawURL string) error {
	input := validate.Shorten{URL: rawURL, ShortCode: opts.Code}
	if err := validate.Check(&input); err != nil {
		return a.fail(apperr.OpShorten, err)
	}
	expiresAt, err := parseExpiry(opts.Expires, a.session.Now())
	if err != nil {
		return a.fail(apperr.OpShorten, err)
	}

	req := api.CreateLinkRequest{OriginalURL: input.URL, ExpiresAt: expiresAt}
	if input.ShortCode != "" {
		req.ShortCode = &input.ShortCode
	}

	var link *api.Link
	if opts.Public || !a.session.IsAuthenticated() {
		a.logger.Debug("creating anonymous link")
		link, err = a.links.CreatePublic(ctx, req)
	} else {
		link, err = a.links.Create(ctx, req)
	}
	if err != nil {
		return a.fail(apperr.OpShorten, err)
	}

	res := ShortenResult{Link: *link, ShortURL: api.ShortURL(a.cfg.PublicURL, link.ShortCode)}
	return a.out.Render(res, func(w io.Writer, p *message.Printer) {
		p.Fprintln(w, res.ShortURL)
	})
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Page   int
	Limit  int
	Search string
	Active bool
	Sort   string
	Order  string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your links",
		Long: `List the links owned by your account, one page at a time.

Example:
  linkctl list
  linkctl list --search go.dev --sort click_count --order desc
  linkctl list --active=false --page 2`,
		Args:          exactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				params := api.ListParams{
					Page:    opts.Page,
					Limit:   opts.Limit,
					Search:  strings.TrimSpace(opts.Search),
					SortBy:  opts.Sort,
					SortDir: opts.Order,
				}
				if cmd.Flags().Changed("active") {
					params.IsActive = &opts.Active
				}
				return runList(ctx, a, params)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "links per page, at most 100")
	cmd.Flags().StringVar(&opts.Search, "search", "", "only links whose URL or code contains this")
	cmd.Flags().BoolVar(&opts.Active, "active", true, "only active (true) or inactive (false) links")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort by created_at, updated_at or click_count")
	cmd.Flags().StringVar(&opts.Order, "order", "", "sort order, asc or desc")

	return cmd
}

func runList(ctx context.Context, a *app, params api.ListParams) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	check := validate.List{Page: params.Page, Limit: params.Limit, SortBy: params.SortBy, SortDir: params.SortDir}
	if err := validate.Check(&check); err != nil {
		return a.fail(apperr.OpOther, err)
	}

	page, err := a.links.List(ctx, params)
	if err != nil {
		return a.fail(apperr.OpOther, err)
	}

	return a.out.Render(page, func(w io.Writer, p *message.Printer) {
		printPage(w, p, page, a.cfg.PublicURL)
	})
}

func printPage(w io.Writer, p *message.Printer, page *api.LinkPage, publicURL string) {
	pg := page.Pagination
	if len(page.Links) == 0 {
		p.Fprintln(w, "No links found.")
		return
	}
	p.Fprintf(w, "Links: page %d of %d (%d total)\n", pg.Page, pg.TotalPages, pg.Total)
	for _, l := range page.Links {
		p.Fprintln(w)
		printLink(w, p, &l, publicURL)
	}
	if pg.HasNext() {
		p.Fprintf(w, "\nMore: linkctl list --page %d\n", pg.Page+1)
	}
}

func printLink(w io.Writer, p *message.Printer, l *api.Link, publicURL string) {
	p.Fprintf(w, "[%s] %s\n", formatID(l.ID), api.ShortURL(publicURL, l.ShortCode))
	p.Fprintf(w, "    URL:     %s\n", l.OriginalURL)
	p.Fprintf(w, "    Clicks:  %d\n", l.ClickCount)
	p.Fprintf(w, "    Active:  %s\n", yesNo(l.IsActive))
	p.Fprintf(w, "    Created: %s\n", formatTime(l.CreatedAt))
	if l.ExpiresAt != nil {
		p.Fprintf(w, "    Expires: %s\n", formatTime(*l.ExpiresAt))
	} else {
		p.Fprintln(w, "    Expires: never")
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one link",
		Long: `Show a single link you own.

Example:
  linkctl show 42`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				id, err := parseID(args[0])
				if err != nil {
					return a.fail(apperr.OpOther, err)
				}
				if err := a.requireLogin(); err != nil {
					return err
				}
				link, err := a.links.Get(ctx, id)
				if err != nil {
					return a.fail(apperr.OpOther, err)
				}
				return a.out.Render(link, func(w io.Writer, p *message.Printer) {
					printLink(w, p, link, a.cfg.PublicURL)
				})
			})
		},
	}
}

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	URL     string
	Expires string
	Active  bool
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a link",
		Long: `Change the target URL, expiry or active state of a link you own.
Only the flags you pass are changed.

Example:
  linkctl update 42 --url https://go.dev/blog
  linkctl update 42 --active=false`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				return runUpdate(ctx, a, opts, cmd, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "new target URL")
	cmd.Flags().StringVar(&opts.Expires, "expires", "", "new expiry as a duration or date")
	cmd.Flags().BoolVar(&opts.Active, "active", true, "enable (true) or disable (false) the link")

	return cmd
}

func runUpdate(ctx context.Context, a *app, opts *UpdateOptions, cmd *cobra.Command, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return a.fail(apperr.OpOther, err)
	}
	input := validate.Update{URL: opts.URL}
	if err := validate.Check(&input); err != nil {
		return a.fail(apperr.OpOther, err)
	}

	var req api.UpdateLinkRequest
	if input.URL != "" {
		req.OriginalURL = &input.URL
	}
	if req.ExpiresAt, err = parseExpiry(opts.Expires, a.session.Now()); err != nil {
		return a.fail(apperr.OpOther, err)
	}
	if cmd.Flags().Changed("active") {
		req.IsActive = &opts.Active
	}
	if req == (api.UpdateLinkRequest{}) {
		return a.fail(apperr.OpOther, errorf("nothing to update: pass --url, --expires or --active"))
	}

	if err := a.requireLogin(); err != nil {
		return err
	}
	link, err := a.links.Update(ctx, id, req)
	if err != nil {
		return a.fail(apperr.OpOther, err)
	}
	return a.out.Render(link, func(w io.Writer, p *message.Printer) {
		printLink(w, p, link, a.cfg.PublicURL)
	})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a link",
		Long: `Delete a link you own. Its click history is deleted with it.

Example:
  linkctl delete 42`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				id, err := parseID(args[0])
				if err != nil {
					return a.fail(apperr.OpOther, err)
				}
				if err := a.requireLogin(); err != nil {
					return err
				}
				if err := a.links.Delete(ctx, id); err != nil {
					return a.fail(apperr.OpOther, err)
				}
				return a.out.Render(map[string]uint{"deleted": id}, func(w io.Writer, p *message.Printer) {
					p.Fprintf(w, "Deleted link %s\n", formatID(id))
				})
			})
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <id>",
		Short: "Show click statistics for a link",
		Long: `Show a link's click count and its most recent clicks.

Example:
  linkctl stats 42`,
		Args:          exactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, func(ctx context.Context, a *app) error {
				id, err := parseID(args[0])
				if err != nil {
					return a.fail(apperr.OpOther, err)
				}
				if err := a.requireLogin(); err != nil {
					return err
				}
				stats, err := a.links.Stats(ctx, id)
				if err != nil {
					return a.fail(apperr.OpOther, err)
				}
				return a.out.Render(stats, func(w io.Writer, p *message.Printer) {
					printStats(w, p, stats, a.cfg.PublicURL)
				})
			})
		},
	}
}

func printStats(w io.Writer, p *message.Printer, s *api.LinkStats, publicURL string) {
	printLink(w, p, &s.Link, publicURL)
	if len(s.RecentClicks) == 0 {
		p.Fprintln(w, "\nNo clicks yet.")
		return
	}
	p.Fprintf(w, "\nRecent clicks (%d):\n", len(s.RecentClicks))
	for _, c := range s.RecentClicks {
		p.Fprintf(w, "  %s  %-15s  %s\n", formatTime(c.ClickedAt), c.IPAddress, c.UserAgent)
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errorf("invalid link id %q", raw)
	}
	return uint(id), nil
}

// parseExpiry accepts a duration from now, a date or an RFC 3339 time.
// An empty string means no expiry.
func parseExpiry(raw string, now time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return nil, errorf("invalid expiry %q: duration must be positive", raw)
		}
		t := now.Add(d).UTC()
		return &t, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errorf("invalid expiry %q: use a duration like 72h or a date like 2025-12-31", raw)
}

// formatID prints an ID without digit grouping.
func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
