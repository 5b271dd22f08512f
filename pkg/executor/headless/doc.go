// Package headless runs a pilot task without a human at the terminal, for
// CI jobs, cron and webhooks.
//
// A run is described by a YAML file:
//
//	task: "Collect this week's invoice totals from the billing portal"
//	workspace: finance
//	mode: read-only
//	constraints:
//	  allowed_urls: ["https://billing.example.com/*"]
//	  max_risk: medium
//	  max_actions: 40
//	  timeout: 5m
//	artifacts:
//	  enabled: true
//	  output_dir: .pilot/artifacts
//
// Safety Constraints:
//
// The constraint manager answers every approval request the gate raises:
// requests above max_risk, actions outside allowed_actions, clicks and
// form input in read-only mode and navigation outside allowed_urls are
// rejected, which ends the run as stopped. Actions the gate does not ask
// about are checked as they start; a violation there, or exceeding the
// action or token budget, cancels the run and marks it failed.
//
// Artifacts:
//
// The artifact writer generates execution reports:
//   - execution.json: full execution summary
//   - summary.md: human-readable markdown summary
//   - metrics.json: execution metrics
package headless
