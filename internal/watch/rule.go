package watch

// ExecuteSpec is the optional post-sync command a rule has the hub send
// as an Execute to the agent, which runs it after a push to that agent
// completes successfully, supplementing spec.md from
// original_source/launcher/src/config.rs's ExecuteConfig.
type ExecuteSpec struct {
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
}

// Rule is one watched directory: spec.md's WatchDirectory/UnwatchDirectory
// unit, enriched with the hostname-glob Clients filter and Mirror flag
// supplemented from original_source/launcher/src/config.rs's SyncRule.
type Rule struct {
	Name        string
	Path        string
	Destination string
	Recursive   bool
	Include     []string
	Exclude     []string
	// Clients restricts the push to agents whose hostname matches one of
	// these glob patterns. Empty means push to every connected agent,
	// preserving spec.md's default.
	Clients []string
	// Mirror deletes files on the destination that no longer exist at
	// Path, supplemented from SyncRule.mirror; spec.md's Non-goals bar
	// bidirectional conflict resolution, not one-directional mirroring.
	Mirror  bool
	Execute *ExecuteSpec
}
