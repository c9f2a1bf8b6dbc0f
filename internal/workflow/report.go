package workflow

import (
	"context"
	"os"

	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/logmonitor"
	"github.com/olcbioinformatics/sippr-launcher/internal/mail"
	"github.com/olcbioinformatics/sippr-launcher/internal/report"
)

// generate assembles and renders the report for run.
func (c *Controller) generate(ctx context.Context, run *activeRun, st logmonitor.State) (string, int, error) {
	sheet := c.sampleSheet(run, st)

	doc, err := c.opts.Aggregator.Build(ctx, report.Request{
		RunName:     run.inv.RunName,
		ReportDir:   run.inv.ReportDir,
		SampleSheet: sheet,
		Footer:      c.opts.Footer,
		Logo:        c.opts.Logo,
		Now:         c.now,
	})
	if err != nil {
		return "", 0, err
	}

	path := report.OutputPath(c.opts.OutputDir, run.inv.RunName, c.opts.ReportSuffix, "pdf", doc.Issued)
	if err := c.opts.Renderer.Render(doc, path); err != nil {
		return "", 0, err
	}

	if c.opts.ExportYAML {
		yamlPath := report.OutputPath(c.opts.OutputDir, run.inv.RunName, c.opts.ReportSuffix, "yaml", doc.Issued)
		if err := (report.YAMLRenderer{}).Render(doc, yamlPath); err != nil {
			c.logger.Warn().Err(err).Str("path", yamlPath).Msg("YAML export failed")
		}
	}
	return path, len(doc.Samples), nil
}

// sampleSheet picks the sheet the report is built from. The one named in the
// pipeline log wins when it maps to an existing host file. Otherwise the
// sheet the run was launched with is used.
func (c *Controller) sampleSheet(run *activeRun, st logmonitor.State) string {
	if st.SampleSheet == "" {
		return run.inv.SampleSheet
	}
	host, ok := c.opts.Builder.HostPath(st.SampleSheet)
	if !ok {
		c.logger.Warn().
			Str("logged", st.SampleSheet).
			Str("fallback", run.inv.SampleSheet).
			Msg("Logged sample sheet is outside every mount")
		return run.inv.SampleSheet
	}
	if _, err := os.Stat(host); err != nil {
		c.logger.Warn().Err(err).
			Str("logged", host).
			Str("fallback", run.inv.SampleSheet).
			Msg("Logged sample sheet is not readable")
		return run.inv.SampleSheet
	}
	return host
}

// startDelivery uploads and mails the report in the background. Each
// delivery gets constants.DeliveryTimeout regardless of ctx.
func (c *Controller) startDelivery(ctx context.Context, runName, reportPath string, samples int) {
	if c.opts.Archiver == nil && c.opts.Mailer == nil {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DeliveryTimeout)
	c.deliveries.Add(1)
	go func() {
		defer c.deliveries.Done()
		defer cancel()
		c.deliver(dctx, runName, reportPath, samples)
	}()
}

// deliver archives and mails a finished report. Failures are published
// but never change the outcome of the run.
func (c *Controller) deliver(ctx context.Context, name, reportPath string, samples int) {
	var location string
	if c.opts.Archiver != nil {
		loc, err := c.opts.Archiver.Upload(ctx, reportPath)
		if err != nil {
			c.logger.Warn().Err(err).Str("run", name).Msg("Report archive upload failed")
			c.bus.PublishError(name, "archive", err)
		}
		location = loc
	}

	if c.opts.Mailer != nil {
		err := c.opts.Mailer.ReportReady(ctx, mail.ReportMessage{
			RunName:    name,
			ReportPath: reportPath,
			Location:   location,
			Samples:    samples,
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("run", name).Msg("Report mail failed")
			c.bus.PublishError(name, "mail", err)
		}
	}
}
