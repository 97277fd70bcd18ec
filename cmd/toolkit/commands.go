package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/raywall/fast-ledger-service/ledger"
	"github.com/raywall/fast-ledger-service/patch"
	"github.com/raywall/fast-ledger-service/pkg/engine"
	"github.com/raywall/fast-ledger-service/pkg/rules"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// engineDeps permite que os testes troquem os clientes AWS do seed.
var engineDeps engine.Deps

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "toolkit",
		Short:         "Ferramentas de apoio ao fast-ledger-service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("region", os.Getenv("AWS_REGION"), "região AWS para fontes s3:// e dynamodb://")

	root.AddCommand(newValidateCmd(), newPlanCmd(), newSeedCmd())
	return root
}

// --- validate ---

// report é a saída JSON do validate, consumida pelo pipeline de deploy.
type report struct {
	Valid    bool          `json:"valid"`
	Service  string        `json:"service,omitempty"`
	Runtime  string        `json:"runtime,omitempty"`
	Entities []entityRoute `json:"entities,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
}

type entityRoute struct {
	Name   string   `json:"name"`
	Table  string   `json:"table"`
	Routes []string `json:"routes"`
	Rules  int      `json:"rules"`
}

func newValidateCmd() *cobra.Command {
	var (
		file   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Valida um arquivo de configuração (local, s3:// ou dynamodb://)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			region, _ := cmd.Flags().GetString("region")
			rep := runValidate(cmd.Context(), engine.NewUniversalLoader(region), file)

			out := cmd.OutOrStdout()
			if output == "json" {
				if err := json.NewEncoder(out).Encode(rep); err != nil {
					return err
				}
			} else {
				printReport(out, file, rep)
			}
			if !rep.Valid {
				return fmt.Errorf("configuração inválida")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "caminho do arquivo YAML ou URI S3/DynamoDB")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "formato da saída (text|json)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runValidate(ctx context.Context, loader *engine.UniversalLoader, source string) report {
	cfg, err := loader.Load(ctx, source)
	if err != nil {
		return report{Errors: []string{err.Error()}}
	}

	rep := report{Valid: true, Service: cfg.Service.Name, Runtime: cfg.Service.Runtime}

	rm, err := rules.NewRuleManager()
	if err != nil {
		return report{Errors: []string{err.Error()}}
	}

	defs := make([]*ledger.Definition, 0, len(cfg.Entities))
	for _, ec := range cfg.Entities {
		def, err := engine.Definition(ec)
		if err != nil {
			rep.Valid = false
			rep.Errors = append(rep.Errors, err.Error())
			continue
		}
		defs = append(defs, def)

		rs, err := rm.Compile(ec.Name, ec.Validations)
		if err != nil {
			rep.Valid = false
			rep.Errors = append(rep.Errors, err.Error())
			continue
		}
		rep.Entities = append(rep.Entities, entityRoute{
			Name:   def.Name,
			Table:  def.Table,
			Routes: append(def.Routes(), "GET "+def.HealthPath),
			Rules:  rs.Len(),
		})
	}

	// Colisões de rota entre entidades só aparecem ao montar o handler.
	if err := ledger.CheckRoutes(defs...); err != nil {
		rep.Valid = false
		rep.Errors = append(rep.Errors, err.Error())
	}
	return rep
}

func printReport(w io.Writer, source string, rep report) {
	fmt.Fprintf(w, "🔍 Analisando configuração: %s ...\n", source)
	if !rep.Valid {
		fmt.Fprintln(w, "❌ A configuração contém erros:")
		for _, e := range rep.Errors {
			fmt.Fprintf(w, " - %s\n", e)
		}
		return
	}
	for _, e := range rep.Entities {
		fmt.Fprintf(w, " • %s (%s) regras=%d\n", e.Name, e.Table, e.Rules)
		for _, r := range e.Routes {
			fmt.Fprintf(w, "     %s\n", r)
		}
	}
	fmt.Fprintln(w, "✅ Configuração Válida e Pronta para Deploy!")
}

// --- plan ---

// planOutput espelha os campos do UpdateItem que o PATCH enviaria.
type planOutput struct {
	UpdateExpression          string            `json:"UpdateExpression"`
	ExpressionAttributeNames  map[string]string `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]any    `json:"ExpressionAttributeValues"`
	Fields                    []string          `json:"Fields"`
}

func newPlanCmd() *cobra.Command {
	var entity, body string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Mostra a expressão de atualização que um PATCH geraria",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := runPlan(entity, body)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "entidade do catálogo ("+strings.Join(ledger.Names(), ", ")+")")
	cmd.Flags().StringVarP(&body, "body", "b", "", "corpo JSON do PATCH")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func runPlan(entity, body string) (*planOutput, error) {
	def, ok := ledger.Lookup(entity)
	if !ok {
		return nil, fmt.Errorf("entidade desconhecida: '%s'", entity)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var candidates patch.Candidates
	if err := dec.Decode(&candidates); err != nil {
		return nil, fmt.Errorf("corpo JSON inválido: %w", err)
	}
	for _, k := range def.KeyNames() {
		delete(candidates, k)
	}

	plan, err := def.Schema.BuildPlan(candidates)
	if err != nil {
		return nil, err
	}

	out := &planOutput{
		UpdateExpression:          plan.Clause,
		ExpressionAttributeNames:  plan.Names,
		ExpressionAttributeValues: make(map[string]any, len(plan.Assignments)),
		Fields:                    plan.Fields(),
	}
	for _, a := range plan.Assignments {
		out.ExpressionAttributeValues[a.Placeholder] = a.Value
	}
	return out, nil
}

// --- seed ---

func newSeedCmd() *cobra.Command {
	var source, entity, file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Grava itens de um arquivo YAML na tabela de uma entidade",
		RunE: func(cmd *cobra.Command, _ []string) error {
			region, _ := cmd.Flags().GetString("region")
			n, err := runSeed(cmd.Context(), engine.NewUniversalLoader(region), source, entity, file)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %d itens gravados em %s\n", n, entity)
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "config", "c", "", "configuração do serviço (arquivo ou URI)")
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "entidade de destino")
	cmd.Flags().StringVarP(&file, "file", "f", "", "arquivo YAML com a lista de itens")
	for _, f := range []string{"config", "entity", "file"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func runSeed(ctx context.Context, loader *engine.UniversalLoader, source, entity, file string) (int, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return 0, err
	}
	var bodies []map[string]any
	if err := yaml.Unmarshal(raw, &bodies); err != nil {
		return 0, fmt.Errorf("arquivo de itens inválido: %w", err)
	}

	eng, err := engine.Load(ctx, loader, source, engineDeps)
	if err != nil {
		return 0, err
	}
	defer eng.Close()

	svc, ok := eng.Service(entity)
	if !ok {
		configured := make([]string, 0, len(eng.Config().Entities))
		for _, e := range eng.Config().Entities {
			configured = append(configured, e.Name)
		}
		sort.Strings(configured)
		return 0, fmt.Errorf("entidade '%s' não configurada (disponíveis: %s)", entity, strings.Join(configured, ", "))
	}
	return svc.Seed(ctx, bodies)
}
