// Package pipeline runs one extraction end to end: login, exam selection,
// console capture, transformation, image download and output.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/use-agent/provas/auth"
	"github.com/use-agent/provas/browser"
	"github.com/use-agent/provas/config"
	"github.com/use-agent/provas/extractor"
	"github.com/use-agent/provas/images"
	"github.com/use-agent/provas/models"
	"github.com/use-agent/provas/navigator"
	"github.com/use-agent/provas/output"
	"github.com/use-agent/provas/simhash"
	"github.com/use-agent/provas/transform"
	"github.com/use-agent/provas/webhook"
)

// Browser is a running browser that hands out tabs. *browser.Session
// implements it.
type Browser interface {
	NewTab() (browser.Tab, error)
	Close()
}

// LaunchFunc starts a Browser.
type LaunchFunc func(cfg config.BrowserConfig) (Browser, error)

// Authenticator logs a tab in and tells whether it still is.
type Authenticator interface {
	Login(ctx context.Context, tab browser.Tab, creds models.Credentials) error
	IsLoggedIn(ctx context.Context, tab browser.Tab) bool
}

// Navigator drives the exam picker and question menu.
type Navigator interface {
	NavigateToBanco(ctx context.Context) error
	ListProvas(ctx context.Context) ([]models.ExamOption, error)
	SelectProva(ctx context.Context, label string, index int) (string, error)
	OpenProva(ctx context.Context) error
	extractor.Pager
}

// Params are the per-run inputs.
type Params struct {
	Credentials models.Credentials

	// OutputPath overrides the generated artifact path.
	OutputPath string

	// Limit caps the number of questions probed; <= 0 means no cap.
	Limit int

	Selection Selection

	// Prompt is asked when Selection is empty.
	Prompt PromptFunc
}

// Result is what a successful Run produced.
type Result struct {
	Report     *models.RunReport
	ReportPath string
	Questions  []models.TransformedQuestion
}

// Runner wires the stages together. Stages are strictly sequential on one
// tab; only the image batch runs concurrently.
type Runner struct {
	cfg          *config.Config
	launch       LaunchFunc
	auth         Authenticator
	newNavigator func(tab browser.Tab) Navigator
	extractor    *extractor.Extractor
	downloader   *images.Downloader
	now          func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLauncher replaces browser.Launch.
func WithLauncher(f LaunchFunc) Option { return func(r *Runner) { r.launch = f } }

// WithAuthenticator replaces the form-driving authenticator.
func WithAuthenticator(a Authenticator) Option { return func(r *Runner) { r.auth = a } }

// WithNavigator replaces the iframe-driving navigator.
func WithNavigator(f func(tab browser.Tab) Navigator) Option {
	return func(r *Runner) { r.newNavigator = f }
}

// WithDownloader replaces the image downloader.
func WithDownloader(d *images.Downloader) Option { return func(r *Runner) { r.downloader = d } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// NewRunner creates a Runner backed by a real browser unless overridden.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg: cfg,
		launch: func(c config.BrowserConfig) (Browser, error) {
			s, err := browser.Launch(c)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		auth: auth.New(cfg.Site, cfg.Timeouts, cfg.Pacing),
		newNavigator: func(tab browser.Tab) Navigator {
			return navigator.New(tab, cfg)
		},
		extractor: extractor.New(cfg.Extraction, cfg.Pacing),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.downloader == nil {
		r.downloader = images.NewDownloader(cfg.Images, cfg.Browser.Proxy)
	}
	return r
}

// Run performs one extraction. The run report is written whether or not
// the run succeeds, and the browser is closed before Run returns.
func (r *Runner) Run(ctx context.Context, p Params) (res *Result, err error) {
	report := output.NewReport(r.now())
	slog.Info("run started", "executionId", report.ExecutionID, "limit", p.Limit)

	defer func() {
		reportPath := r.finish(ctx, report, err)
		if res != nil {
			res.ReportPath = reportPath
		}
	}()

	if strings.TrimSpace(p.Credentials.Email) == "" || p.Credentials.Password == "" {
		return nil, models.NewPipelineError(models.ErrCodeInvalidInput, "email and password are required", nil)
	}

	// ── 1. Browser ──
	b, err := r.launch(r.cfg.Browser)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	tab, err := b.NewTab()
	if err != nil {
		return nil, err
	}
	// Runs before b.Close.
	defer func() {
		if err != nil && models.IsStructural(err) {
			r.dumpDebug(ctx, tab, err)
		}
	}()

	// ── 2. Console listener, before any navigation ──
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	listener, err := extractor.Listen(listenCtx, tab, r.cfg.Extraction)
	if err != nil {
		return nil, err
	}

	// ── 3. Login ──
	if err := r.auth.Login(ctx, tab, p.Credentials); err != nil {
		return nil, err
	}

	// ── 4. Exam selection ──
	nav := r.newNavigator(tab)
	chosen, err := r.selectExam(ctx, tab, nav, p)
	if err != nil {
		return nil, err
	}
	report.ExamLabel = chosen.Label

	if err := nav.OpenProva(ctx); err != nil {
		return nil, err
	}

	// ── 5. Extraction ──
	extracted, err := r.extractor.ExtractProva(ctx, listener, nav, p.Limit)
	if err != nil {
		return nil, err
	}
	report.Exam = extracted.Exam
	report.StopReason = extracted.StopReason
	report.Stats.ExtractionStats = extracted.Stats

	// ── 6. Transform ──
	questions, fallbacks := transform.TransformAll(extracted.Questions, transform.Options{
		Source:          r.cfg.Output.Source,
		PipelineVersion: r.cfg.Output.PipelineVersion,
		ScrapedAt:       r.now(),
	})
	report.Stats.Transformed = len(questions)
	report.Stats.CorrectFallbacks = fallbacks
	report.Stats.NearDuplicates = r.nearDuplicates(questions)

	// ── 7. Images ──
	downloads := r.downloader.DownloadBatch(ctx, transform.CollectImageURLs(extracted.Questions))
	countDownloads(&report.Stats, downloads)
	local := images.LocalPaths(downloads)
	for i := range questions {
		transform.Localize(&questions[i], extracted.Questions[i], local, r.cfg.Images.ServePrefix)
	}

	// ── 8. Output ──
	path := p.OutputPath
	if path == "" {
		path = output.DefaultOutputPath(r.cfg.Output.Dir, extracted.Exam.Institution, extracted.Exam.Year, r.now())
	}
	if err := output.WriteQuestions(path, questions); err != nil {
		return nil, err
	}
	report.OutputFile = path
	slog.Info("questions written", "path", path, "count", len(questions))

	res = &Result{Report: report, Questions: questions}
	if extracted.StopReason == extractor.StopCanceled {
		// The partial output stays on disk but the run is not a success.
		return res, fmt.Errorf("extraction interrupted after %d questions, partial output in %s: %w", len(questions), path, ctx.Err())
	}
	return res, nil
}

// List logs in and returns the exams in the picker without extracting.
func (r *Runner) List(ctx context.Context, creds models.Credentials) (options []models.ExamOption, err error) {
	b, err := r.launch(r.cfg.Browser)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	tab, err := b.NewTab()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && models.IsStructural(err) {
			r.dumpDebug(ctx, tab, err)
		}
	}()

	if err := r.auth.Login(ctx, tab, creds); err != nil {
		return nil, err
	}
	nav := r.newNavigator(tab)
	if err := r.openBanco(ctx, tab, nav); err != nil {
		return nil, err
	}
	return nav.ListProvas(ctx)
}

// openBanco navigates to the question bank. A failure that leaves the tab
// outside the logged-in area is reported as a lost session.
func (r *Runner) openBanco(ctx context.Context, tab browser.Tab, nav Navigator) error {
	err := nav.NavigateToBanco(ctx)
	if err == nil || ctx.Err() != nil {
		return err
	}
	if !r.auth.IsLoggedIn(ctx, tab) {
		return models.NewPipelineError(models.ErrCodeUnexpectedRedirect, "session lost before reaching the question bank", err)
	}
	return err
}

func (r *Runner) selectExam(ctx context.Context, tab browser.Tab, nav Navigator, p Params) (models.ExamOption, error) {
	if err := r.openBanco(ctx, tab, nav); err != nil {
		return models.ExamOption{}, err
	}
	options, err := nav.ListProvas(ctx)
	if err != nil {
		return models.ExamOption{}, err
	}

	var chosen models.ExamOption
	if p.Selection.Empty() && p.Prompt != nil {
		i, err := p.Prompt(options)
		if err != nil {
			return models.ExamOption{}, models.NewPipelineError(models.ErrCodeInvalidInput, "exam prompt", err)
		}
		if i < 0 || i >= len(options) {
			return models.ExamOption{}, invalidSelection("exam index %d out of range 1..%d", i+1, len(options))
		}
		chosen = options[i]
	} else {
		chosen, err = ChooseExam(options, p.Selection)
		if err != nil {
			return models.ExamOption{}, err
		}
	}

	if _, err := nav.SelectProva(ctx, chosen.Label, chosen.Index); err != nil {
		return models.ExamOption{}, err
	}
	return chosen, nil
}

// finish stamps, writes and announces the report. Failures here are logged
// and never replace the run's own error.
func (r *Runner) finish(ctx context.Context, report *models.RunReport, runErr error) string {
	output.Finish(report, r.now(), runErr)

	path, err := output.WriteReport(r.cfg.Output.LogsDir, report)
	if err != nil {
		slog.Error("failed to write run report", "error", err)
	} else {
		slog.Info("run report written", "path", path)
	}

	if r.cfg.Webhook.URL != "" {
		r.notify(ctx, report)
	}
	return path
}

// finalDeliveryTimeout bounds the single webhook attempt of an interrupted run.
const finalDeliveryTimeout = 5 * time.Second

// notify delivers the run event. Cancelling ctx stops the retries; a run
// that was already interrupted gets one bounded attempt.
func (r *Runner) notify(ctx context.Context, report *models.RunReport) {
	event := webhook.NewRunEvent(report)
	if ctx.Err() == nil {
		// Failures are logged by DeliverWithRetry.
		_ = webhook.DeliverWithRetry(ctx, r.cfg.Webhook.URL, r.cfg.Webhook.Secret, event)
		return
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalDeliveryTimeout)
	defer cancel()
	if err := webhook.Deliver(dctx, r.cfg.Webhook.URL, r.cfg.Webhook.Secret, event); err != nil {
		slog.Warn("webhook delivery after interrupt failed", "url", r.cfg.Webhook.URL, "error", err)
	}
}

func (r *Runner) dumpDebug(ctx context.Context, tab browser.Tab, cause error) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	label := strings.ToLower(models.CodeOf(cause))
	browser.DumpDebug(dctx, tab, r.cfg.Output.DebugDir, label)
}

func countDownloads(s *models.RunStats, results []models.DownloadResult) {
	s.ImagesTotal = len(results)
	for _, d := range results {
		switch {
		case !d.Success:
			s.ImagesFailed++
		case d.Cached:
			s.ImagesCached++
		default:
			s.ImagesDownloaded++
		}
	}
}

// nearDuplicates logs statements whose visible text is nearly identical,
// which usually means the bank repeats a question. Negative distances
// disable the check.
func (r *Runner) nearDuplicates(questions []models.TransformedQuestion) int {
	threshold := r.cfg.Extraction.DuplicateDistance
	if threshold < 0 {
		return 0
	}
	fps := make([]uint64, len(questions))
	for i := range questions {
		fps[i] = simhash.Statement(questions[i].Statement)
	}
	pairs := simhash.NearDuplicates(fps, threshold)
	for _, p := range pairs {
		slog.Warn("near-duplicate statements",
			"first", questions[p.A].ID,
			"second", questions[p.B].ID,
			"distance", p.Distance,
		)
	}
	return len(pairs)
}
