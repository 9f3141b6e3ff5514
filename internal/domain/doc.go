// Package domain implements the pure transformation stages of the wind-farm
// ETL pipeline: unit conversion, timestamp normalization, enrichment, and
// anomaly detection/repair. Every function is a stateless transform over a
// dataset.Dataset; nothing here touches the network or the filesystem.
//
// # Data Conventions
//
// Production CSV interchange format (semicolon-delimited):
//
//	date;turbin_id;energie_kWh;arret_planifie;arret_non_planifie
//	- date is YYYY-MM-DD
//	- turbin_id is one of a small fixed fleet (T001, T002)
//	- energie_kWh is a non-negative float or empty
//	- the two outage columns are 0/1 or empty, never both 1 on one row
//
// Weather observations carry temperature (°C), wind_speed (km/h),
// wind_direction (compass abbreviation), pressure, humidity, and a ts_utc
// timestamp. Unit conversion derives temperature_K, wind_speed_ms, and
// energie_mwh alongside the source columns; source columns stay the single
// source of truth and derived columns are overwritten on re-run.
//
// # Anomaly Semantics
//
// Energy output is screened per turbine with the 1.5×IQR rule (quartiles by
// linear interpolation, groups under 4 observations skipped). Wind speed and
// temperature are screened against fixed physical ceilings. Flags are
// metric-scoped boolean columns (energy_anomaly, wind_anomaly, temp_anomaly)
// recomputed from scratch on every pass. Repair substitutes the median of
// the group's non-flagged rows; binary outage indicators are defaulted to 0
// instead because median imputation is meaningless for categorical columns.
//
// # Identifiers
//
// Row keys are deterministic MD5 hashes of "<ts_utc>-<station_id>", so two
// rows with the same timestamp and station always collide. That collision is
// the deduplication signal downstream upserts rely on.
package domain
