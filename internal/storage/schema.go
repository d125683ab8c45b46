package storage

import "context"

// Schema for the catalog. Table and column names match the wire payloads
// the kiosks already consume.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS locales (
	id              BIGSERIAL PRIMARY KEY,
	nombre          VARCHAR(100) NOT NULL,
	direccion       TEXT,
	telefono        VARCHAR(20),
	timezone        VARCHAR(50) DEFAULT 'America/Argentina/Buenos_Aires',
	esta_activo     BOOLEAN DEFAULT TRUE,
	fecha_creacion  TIMESTAMPTZ DEFAULT now()
);

CREATE TABLE IF NOT EXISTS categorias (
	id              BIGSERIAL PRIMARY KEY,
	local_id        BIGINT NOT NULL REFERENCES locales(id) ON DELETE CASCADE,
	nombre          VARCHAR(50) NOT NULL,
	descripcion     TEXT,
	orden           INT DEFAULT 0,
	esta_activo     BOOLEAN DEFAULT TRUE,
	fecha_creacion  TIMESTAMPTZ DEFAULT now(),
	UNIQUE (local_id, nombre)
);

CREATE TABLE IF NOT EXISTS productos (
	id                   BIGSERIAL PRIMARY KEY,
	local_id             BIGINT NOT NULL REFERENCES locales(id) ON DELETE CASCADE,
	categoria_id         BIGINT REFERENCES categorias(id) ON DELETE SET NULL,
	nombre               VARCHAR(100) NOT NULL,
	descripcion          TEXT,
	precio               NUMERIC(10,2) NOT NULL CHECK (precio >= 0),
	imagen_url           TEXT,
	disponible           BOOLEAN DEFAULT TRUE,
	destacado            BOOLEAN DEFAULT FALSE,
	orden                INT DEFAULT 0,
	fecha_creacion       TIMESTAMPTZ DEFAULT now(),
	fecha_actualizacion  TIMESTAMPTZ DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_productos_local_disponible ON productos (local_id, disponible);

CREATE TABLE IF NOT EXISTS configuracion_carrusel (
	local_id             BIGINT PRIMARY KEY REFERENCES locales(id) ON DELETE CASCADE,
	habilitado           BOOLEAN DEFAULT TRUE,
	intervalo_segundos   INT DEFAULT 8 CHECK (intervalo_segundos > 0),
	fecha_actualizacion  TIMESTAMPTZ DEFAULT now()
);
`

func (db *DB) initSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, schemaDDL)
	return err
}
