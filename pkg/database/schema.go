package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the tables backing the record store
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.WithComponent("database").Info("Creating database schema...")

	tables := []string{
		createGuiasTable,
		createFichasTable,
		createExecucoesTable,
		createDivergenciasTable,
		createAuditoriaExecucoesTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createFichasIndexes,
		createExecucoesIndexes,
		createDivergenciasIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.WithComponent("database").Info("Database schema created successfully")
	return nil
}

// Dates are TEXT in canonical YYYY-MM-DD form. Unparsable source values are
// kept verbatim rather than rejected.
const (
	createGuiasTable = `
		CREATE TABLE IF NOT EXISTS guias (
			id UUID PRIMARY KEY,
			numero_guia VARCHAR(50) UNIQUE NOT NULL,
			paciente_nome VARCHAR(200) NOT NULL DEFAULT '',
			carteirinha VARCHAR(50) NOT NULL DEFAULT '',
			quantidade_autorizada INTEGER NOT NULL DEFAULT 0 CHECK (quantidade_autorizada >= 0),
			quantidade_executada INTEGER NOT NULL DEFAULT 0 CHECK (quantidade_executada >= 0),
			data_emissao TEXT,
			data_validade TEXT,
			status VARCHAR(20) NOT NULL DEFAULT 'pendente',
			codigo_procedimento VARCHAR(50),
			procedimento_nome VARCHAR(200),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createFichasTable = `
		CREATE TABLE IF NOT EXISTS fichas (
			id UUID PRIMARY KEY,
			codigo_ficha VARCHAR(50) UNIQUE NOT NULL,
			numero_guia VARCHAR(50) NOT NULL DEFAULT '',
			paciente_nome VARCHAR(200) NOT NULL DEFAULT '',
			carteirinha VARCHAR(50) NOT NULL DEFAULT '',
			data_atendimento TEXT,
			possui_assinatura BOOLEAN NOT NULL DEFAULT FALSE,
			arquivo_digitalizado TEXT,
			status VARCHAR(20) NOT NULL DEFAULT 'pendente',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createExecucoesTable = `
		CREATE TABLE IF NOT EXISTS execucoes (
			id UUID PRIMARY KEY,
			numero_guia VARCHAR(50) NOT NULL DEFAULT '',
			codigo_ficha VARCHAR(50),
			paciente_nome VARCHAR(200) NOT NULL DEFAULT '',
			carteirinha VARCHAR(50) NOT NULL DEFAULT '',
			data_execucao TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createDivergenciasTable = `
		CREATE TABLE IF NOT EXISTS divergencias (
			id UUID PRIMARY KEY,
			numero_guia VARCHAR(50) NOT NULL,
			tipo_divergencia VARCHAR(50) NOT NULL,
			descricao TEXT NOT NULL,
			paciente_nome VARCHAR(200) NOT NULL,
			codigo_ficha VARCHAR(50) NOT NULL DEFAULT '',
			data_execucao TEXT,
			data_atendimento TEXT,
			carteirinha VARCHAR(50) NOT NULL DEFAULT '',
			prioridade VARCHAR(10) NOT NULL DEFAULT 'MEDIA',
			status VARCHAR(20) NOT NULL DEFAULT 'pendente',
			detalhes JSONB,
			ficha_id UUID,
			execucao_id UUID,
			data_identificacao TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			data_resolucao TIMESTAMP WITH TIME ZONE,
			resolvido_por VARCHAR(100),
			ordem INTEGER NOT NULL DEFAULT 0
		);`

	createAuditoriaExecucoesTable = `
		CREATE TABLE IF NOT EXISTS auditoria_execucoes (
			id UUID PRIMARY KEY,
			data_execucao TIMESTAMP WITH TIME ZONE NOT NULL,
			data_inicio TEXT,
			data_fim TEXT,
			total_protocolos INTEGER NOT NULL DEFAULT 0,
			total_divergencias INTEGER NOT NULL DEFAULT 0,
			divergencias_por_tipo JSONB NOT NULL DEFAULT '{}'::jsonb,
			total_fichas INTEGER NOT NULL DEFAULT 0,
			total_execucoes INTEGER NOT NULL DEFAULT 0,
			total_resolvidas INTEGER NOT NULL DEFAULT 0,
			duracao_ms BIGINT NOT NULL DEFAULT 0
		);`
)

// SQL DDL statements for index creation
const (
	createFichasIndexes = `
		CREATE INDEX IF NOT EXISTS idx_fichas_numero_guia ON fichas(numero_guia);`

	createExecucoesIndexes = `
		CREATE INDEX IF NOT EXISTS idx_execucoes_numero_guia ON execucoes(numero_guia);
		CREATE INDEX IF NOT EXISTS idx_execucoes_codigo_ficha ON execucoes(codigo_ficha);`

	createDivergenciasIndexes = `
		CREATE INDEX IF NOT EXISTS idx_divergencias_status ON divergencias(status);
		CREATE INDEX IF NOT EXISTS idx_divergencias_tipo ON divergencias(tipo_divergencia);
		CREATE INDEX IF NOT EXISTS idx_divergencias_prioridade ON divergencias(prioridade);
		CREATE INDEX IF NOT EXISTS idx_divergencias_ordem ON divergencias(ordem);`
)
