package orchestrator

import "os/exec"

// execCommandContext is a seam over exec.CommandContext so ScaleService's
// compose shell-out can be swapped for a fake in tests.
var execCommandContext = exec.CommandContext
