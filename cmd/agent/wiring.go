package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"

	"github.com/easeaico/sql-memory-agent/internal/config"
	"github.com/easeaico/sql-memory-agent/internal/database"
	"github.com/easeaico/sql-memory-agent/internal/llm"
	"github.com/easeaico/sql-memory-agent/internal/logging"
	"github.com/easeaico/sql-memory-agent/internal/memory"
	"github.com/easeaico/sql-memory-agent/internal/service"
	"github.com/easeaico/sql-memory-agent/internal/tools"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"
)

// setup loads configuration and initializes logging. Logs always go to
// stderr; in mcp mode stdout carries the protocol.
func (a *App) setup() (config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return config.Config{}, err
	}

	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	return cfg, nil
}

// components holds everything opened for one process.
type components struct {
	store         memory.Store
	target        database.Querier
	service       *service.Service
	memoryService *memory.Service
}

func (c *components) Close() {
	if c.target != nil {
		c.target.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// openComponents connects the memory store and the target database and
// builds the service over them.
func openComponents(ctx context.Context, cfg config.Config) (*components, error) {
	c := &components{}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.store = store

	target, err := openTarget(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.target = target

	c.service = service.New(target, store, service.Config{
		OwnerID:       cfg.MemoryOwner,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	c.memoryService = memory.NewService(store, cfg.MemoryOwner)

	logging.Info().
		Add(logging.Component("main")).
		Add(logging.Str("memory_store", cfg.DBType)).
		Add(logging.Str("target_db", cfg.TargetDBType)).
		Msg("components initialized")

	return c, nil
}

func openStore(ctx context.Context, cfg config.Config) (memory.Store, error) {
	switch cfg.DBType {
	case "sqlite":
		store, err := memory.NewSQLiteStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open memory store: %w", err)
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize memory store: %w", err)
		}
		return store, nil
	default:
		// Embeddings are optional; without a key the store ranks by text.
		var embedder memory.Embedder
		if cfg.APIKey != "" {
			e, err := llm.NewEmbedder(ctx, cfg.APIKey)
			if err != nil {
				return nil, err
			}
			embedder = e
		}

		store, err := memory.NewPostgresStore(ctx, cfg.DatabaseURL, embedder)
		if err != nil {
			return nil, fmt.Errorf("failed to open memory store: %w", err)
		}
		if err := store.InitSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize memory store: %w", err)
		}
		return store, nil
	}
}

func openTarget(ctx context.Context, cfg config.Config) (database.Querier, error) {
	switch cfg.TargetDBType {
	case "sqlite":
		db, err := database.NewSQLiteDB(ctx, cfg.TargetDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to target database: %w", err)
		}
		return db, nil
	default:
		db, err := database.NewPostgresDB(ctx, cfg.TargetDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to target database: %w", err)
		}
		return db, nil
	}
}

// buildAgent creates the LLM agent with the tools and the schema notes
// already in memory.
func buildAgent(ctx context.Context, cfg config.Config, c *components) (agent.Agent, error) {
	notes := loadSchemaNotes(ctx, c.store, cfg.MemoryOwner)

	agentTools, err := tools.BuildTools(tools.ToolsConfig{Operations: c.service})
	if err != nil {
		return nil, fmt.Errorf("failed to build tools: %w", err)
	}

	llmModel, err := gemini.NewModel(ctx, "gemini-2.0-flash", &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM model: %w", err)
	}

	llmAgent, err := llmagent.New(llmagent.Config{
		Name:        "sql_memory_agent",
		Description: "Runs safe SQL analysis and learns from past query outcomes",
		Model:       llmModel,
		Instruction: buildSystemPrompt(notes),
		Tools:       agentTools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	logging.Info().
		Add(logging.Component("main")).
		Add(logging.Count("schema_notes", len(notes))).
		Msg("agent initialized")

	return llmAgent, nil
}

const maxSchemaNotes = 10

// loadSchemaNotes returns the most recent schema_info notes. Failures only
// cost the prompt its notes.
func loadSchemaNotes(ctx context.Context, store memory.Store, owner string) []string {
	category := memory.CategorySchemaInfo
	records, err := store.Search(ctx, memory.SearchRequest{
		OwnerID:  owner,
		Category: &category,
		Limit:    maxSchemaNotes,
	})
	if err != nil {
		logging.Warn().
			Add(logging.Component("main")).
			Add(logging.ErrorField(err)).
			Msg("failed to load schema notes")
		return nil
	}

	notes := make([]string, 0, len(records))
	for _, r := range records {
		notes = append(notes, memory.Truncate(r.Text, 300))
	}
	return notes
}

var systemPromptTmpl = template.Must(template.New("systemPrompt").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`
You are a careful SQL analyst working against a live database.
Every query you run is checked by a safety gate and its outcome is stored in
memory, so the team gets better at querying this database over time.

You can:
1. Run read-oriented SQL with execute_query
2. Search past failures and blocked queries with search_past_issues
3. Review patterns and get suggestions with learn_from_memory
4. Remember schema details or preferences with save_knowledge

{{- if .Notes }}

Known schema notes:
{{- range $idx, $note := .Notes }}
{{ inc $idx }}. {{ $note }}
{{- end }}
{{- end }}

When answering:
- Never try to modify data; destructive statements are blocked
- When a query fails, check search_past_issues before retrying
- Save what you learn about the schema with save_knowledge
- Keep answers concise and show the SQL you ran
`))

// buildSystemPrompt constructs the system prompt with schema notes.
func buildSystemPrompt(notes []string) string {
	var buf bytes.Buffer
	_ = systemPromptTmpl.Execute(&buf, struct{ Notes []string }{Notes: notes})
	return buf.String()
}
