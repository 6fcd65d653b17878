package mcpserver

// WorkflowGuide describes how LLM-driven analysis tools should drive an
// investigation through the MCP tools.
const WorkflowGuide = `# Casefile Investigation Workflow

Every analysis tool talking to Casefile MUST follow this order of operations.
Every tool call that touches evidence is written to the chain-of-custody ledger
under the analyst name you pass (or the server's default analyst).

## 1. Survey

- ` + "`list_evidence`" + ` returns the catalog, newest acquisition first.
  Pass ` + "`type`" + ` (e.g. ` + "`memory_dump`" + `) to narrow it.
- ` + "`get_evidence`" + ` returns one record with its findings.
- Read ` + "`casefile://briefing`" + ` for the case narrative.

## 2. Verify before you trust

- Call ` + "`verify_evidence`" + ` before analysing an item. A result with
  ` + "`valid: false`" + ` means the payload no longer matches its acquisition
  hash. Do **not** cite tampered evidence; report it instead.

## 3. Analyse

- ` + "`record_finding`" + ` attaches one finding to an item. Set
  ` + "`complete: true`" + ` on the last finding of your pass.
- ` + "`log_access`" + ` records any other handling (` + "`image_mounted`" + `, ...).
- ` + "`custody_log`" + ` shows the full handling history of an item.

## 4. Report clues

- ` + "`record_clue`" + ` reports a discovery. ` + "`clue_type`" + ` is one of
  identity, contact, location, financial, communication, malware.
  For ` + "`contact`" + ` clues set ` + "`category`" + ` (email, phone, ...);
  objectives are matched on it.
- ` + "`investigation_state`" + ` shows score and completed objectives.

## 5. Reconstruct the timeline

- ` + "`add_timeline_event`" + ` adds one event. Timestamps are RFC 3339.
  Put the process name in ` + "`process`" + ` and any touched file in ` + "`file`" + `
  so that cross-source correlations can be found.
- ` + "`correlate_timeline`" + ` returns correlations, strongest first.

## 6. Report

- ` + "`cite_evidence`" + ` cites an item into a report section.
- ` + "`report_status`" + ` returns citations, score and outstanding issues.
`
