// Package config loads crewdesk's application configuration and its CUE
// rule tables.
//
// # Application configuration
//
// Load layers built-in defaults, an optional YAML file and CREWDESK_
// environment variables using koanf. Nested keys map from the environment by
// section, so CREWDESK_LOG_LEVEL sets log.level and CREWDESK_DATABASE_PATH
// sets database.path. Write stores a config as YAML for `crewdesk init`.
//
// # Rule tables
//
// Rules are CUE: a single file or a directory holding one CUE package, with a
// top-level rules field. RulesParser unifies that field with the built-in
// #Rules schema, which fills omitted weights with defaults, then decodes it
// into a RulesFile and runs validator tags over the result.
//
//	rules, err := config.LoadRules(ctx, "rules.cue")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng, err := engine.NewEngine(store, rules)
//
// Parse and ParseInline return every problem as a ValidationError carrying
// the file position when CUE reports one. FormatErrors folds them into a
// single error for the CLI.
//
// # Schemas
//
// SchemaRegistry holds named CUE definitions. Built-ins are "rules" (#Rules)
// and "app" (#App); callers may register more.
package config
