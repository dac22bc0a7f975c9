package sqlite

import "etlrepo/internal/dialect"

// RepositoryVersion is written to every change-log row
const RepositoryVersion = "5.0"

const (
	lenName = 255
	lenCode = 255
	lenType = 64
	lenText = 0 // unbounded
)

func keyCol(name string) dialect.ColumnSpec {
	return dialect.ColumnSpec{Name: name, Type: dialect.TypeInteger, PrimaryKey: true}
}

func intCol(name string) dialect.ColumnSpec {
	return dialect.ColumnSpec{Name: name, Type: dialect.TypeInteger}
}

func strCol(name string, length int) dialect.ColumnSpec {
	return dialect.ColumnSpec{Name: name, Type: dialect.TypeString, Length: length}
}

func numCol(name string) dialect.ColumnSpec {
	return dialect.ColumnSpec{Name: name, Type: dialect.TypeNumber}
}

func boolCol(name string) dialect.ColumnSpec {
	return dialect.ColumnSpec{Name: name, Type: dialect.TypeBoolean}
}

func dateCol(name string) dialect.ColumnSpec {
	return dialect.ColumnSpec{Name: name, Type: dialect.TypeDate}
}

func index(table string, cols ...string) dialect.IndexSpec {
	name := "idx_" + table
	for _, c := range cols {
		name += "_" + c
	}
	return dialect.IndexSpec{Name: name, Columns: cols}
}

// attributeTableSpec builds an EAV table owned by ownerColumn
func attributeTableSpec(t attributeTable) dialect.TableSpec {
	return dialect.TableSpec{
		Name: t.name,
		Columns: []dialect.ColumnSpec{
			keyCol(t.idColumn),
			intCol(t.ownerColumn),
			intCol("nr"),
			strCol("code", lenCode),
			strCol("value_type", 1),
			intCol("value_int"),
			numCol("value_num"),
			strCol("value_str", lenText),
		},
		Indexes: []dialect.IndexSpec{index(t.name, t.ownerColumn, "code", "nr")},
	}
}

// schemaTables lists every table of the repository. Order is the creation
// order; there are no declared foreign keys, delete ordering is enforced by
// the persistence code.
func schemaTables() []dialect.TableSpec {
	auditCols := []dialect.ColumnSpec{
		strCol("created_user", lenName),
		dateCol("created_date"),
		strCol("modified_user", lenName),
		dateCol("modified_date"),
	}

	tables := []dialect.TableSpec{
		{
			Name: "r_repository_log",
			Columns: []dialect.ColumnSpec{
				keyCol("id_repository_log"),
				strCol("rep_version", lenType),
				dateCol("log_date"),
				strCol("log_user", lenName),
				strCol("operation_desc", lenText),
			},
		},
		{
			Name: "r_user",
			Columns: []dialect.ColumnSpec{
				keyCol("id_user"),
				strCol("login", lenName),
				strCol("password", lenName),
				strCol("name", lenName),
				strCol("description", lenText),
				boolCol("enabled"),
			},
			Indexes: []dialect.IndexSpec{{Name: "idx_r_user_login", Columns: []string{"login"}, Unique: true}},
		},
		{
			Name: "r_directory",
			Columns: []dialect.ColumnSpec{
				keyCol("id_directory"),
				intCol("id_directory_parent"),
				strCol("directory_name", lenName),
			},
			Indexes: []dialect.IndexSpec{index("r_directory", "id_directory_parent", "directory_name")},
		},
		{
			Name: "r_transformation",
			Columns: append([]dialect.ColumnSpec{
				keyCol("id_transformation"),
				intCol("id_directory"),
				strCol("name", lenName),
				strCol("description", lenText),
				strCol("extended_description", lenText),
			}, auditCols...),
			Indexes: []dialect.IndexSpec{index("r_transformation", "id_directory", "name")},
		},
		{
			Name: "r_step",
			Columns: []dialect.ColumnSpec{
				keyCol("id_step"),
				intCol("id_transformation"),
				strCol("name", lenName),
				strCol("description", lenText),
				strCol("step_type", lenType),
				boolCol("distribute"),
				intCol("copies"),
				intCol("gui_location_x"),
				intCol("gui_location_y"),
				boolCol("gui_draw"),
				intCol("id_cluster_schema"),
				intCol("id_partition_schema"),
			},
			Indexes: []dialect.IndexSpec{index("r_step", "id_transformation")},
		},
		{
			Name: "r_trans_hop",
			Columns: []dialect.ColumnSpec{
				keyCol("id_trans_hop"),
				intCol("id_transformation"),
				intCol("id_step_from"),
				intCol("id_step_to"),
				boolCol("enabled"),
			},
			Indexes: []dialect.IndexSpec{index("r_trans_hop", "id_transformation")},
		},
		{
			Name: "r_note",
			Columns: []dialect.ColumnSpec{
				keyCol("id_note"),
				strCol("value_str", lenText),
				intCol("gui_location_x"),
				intCol("gui_location_y"),
				intCol("gui_location_width"),
				intCol("gui_location_height"),
			},
		},
		{
			Name:    "r_trans_note",
			Columns: []dialect.ColumnSpec{intCol("id_transformation"), intCol("id_note")},
			Indexes: []dialect.IndexSpec{index("r_trans_note", "id_transformation")},
		},
		{
			Name: "r_condition",
			Columns: []dialect.ColumnSpec{
				keyCol("id_condition"),
				intCol("id_condition_parent"),
				boolCol("negated"),
				strCol("operator", lenType),
				strCol("left_name", lenName),
				strCol("condition_function", lenType),
				strCol("right_name", lenName),
				strCol("value_str", lenText),
			},
			Indexes: []dialect.IndexSpec{index("r_condition", "id_condition_parent")},
		},
		{
			Name:    "r_trans_step_condition",
			Columns: []dialect.ColumnSpec{intCol("id_transformation"), intCol("id_step"), intCol("id_condition")},
			Indexes: []dialect.IndexSpec{index("r_trans_step_condition", "id_transformation")},
		},
		{
			Name:    "r_step_database",
			Columns: []dialect.ColumnSpec{intCol("id_transformation"), intCol("id_step"), intCol("id_database")},
			Indexes: []dialect.IndexSpec{index("r_step_database", "id_transformation"), index("r_step_database", "id_database")},
		},
		{
			Name: "r_dependency",
			Columns: []dialect.ColumnSpec{
				keyCol("id_dependency"),
				intCol("id_transformation"),
				intCol("id_database"),
				strCol("table_name", lenName),
				strCol("field_name", lenName),
			},
			Indexes: []dialect.IndexSpec{index("r_dependency", "id_transformation")},
		},
		{
			Name:    "r_trans_cluster",
			Columns: []dialect.ColumnSpec{keyCol("id_trans_cluster"), intCol("id_transformation"), intCol("id_cluster")},
		},
		{
			Name:    "r_trans_partition_schema",
			Columns: []dialect.ColumnSpec{keyCol("id_trans_partition_schema"), intCol("id_transformation"), intCol("id_partition_schema")},
		},
		{
			Name:    "r_trans_slave",
			Columns: []dialect.ColumnSpec{keyCol("id_trans_slave"), intCol("id_transformation"), intCol("id_slave")},
		},
		{
			Name: "r_database",
			Columns: []dialect.ColumnSpec{
				keyCol("id_database"),
				strCol("name", lenName),
				strCol("database_type", lenType),
				strCol("access_type", lenType),
				strCol("host_name", lenName),
				strCol("database_name", lenName),
				strCol("port", lenType),
				strCol("username", lenName),
				strCol("password", lenName),
				strCol("servername", lenName),
				strCol("data_tbs", lenName),
				strCol("index_tbs", lenName),
			},
			Indexes: []dialect.IndexSpec{index("r_database", "name")},
		},
		{
			Name: "r_slave",
			Columns: []dialect.ColumnSpec{
				keyCol("id_slave"),
				strCol("name", lenName),
				strCol("host_name", lenName),
				strCol("port", lenType),
				strCol("web_app_name", lenName),
				strCol("username", lenName),
				strCol("password", lenName),
				strCol("proxy_host_name", lenName),
				strCol("proxy_port", lenType),
				strCol("non_proxy_hosts", lenText),
				boolCol("master"),
			},
		},
		{
			Name: "r_cluster",
			Columns: []dialect.ColumnSpec{
				keyCol("id_cluster"),
				strCol("name", lenName),
				strCol("base_port", lenType),
				strCol("sockets_buffer_size", lenType),
				strCol("sockets_flush_interval", lenType),
				boolCol("sockets_compressed"),
				boolCol("dynamic_cluster"),
			},
		},
		{
			Name:    "r_cluster_slave",
			Columns: []dialect.ColumnSpec{keyCol("id_cluster_slave"), intCol("id_cluster"), intCol("id_slave")},
		},
		{
			Name: "r_partition_schema",
			Columns: []dialect.ColumnSpec{
				keyCol("id_partition_schema"),
				strCol("name", lenName),
				boolCol("dynamic_definition"),
				strCol("partitions_per_slave", lenType),
			},
		},
		{
			Name:    "r_partition",
			Columns: []dialect.ColumnSpec{keyCol("id_partition"), intCol("id_partition_schema"), strCol("partition_id", lenName)},
		},
		{
			Name: "r_job",
			Columns: append([]dialect.ColumnSpec{
				keyCol("id_job"),
				intCol("id_directory"),
				strCol("name", lenName),
				strCol("description", lenText),
				strCol("extended_description", lenText),
			}, auditCols...),
			Indexes: []dialect.IndexSpec{index("r_job", "id_directory", "name")},
		},
		{
			Name: "r_jobentry",
			Columns: []dialect.ColumnSpec{
				keyCol("id_jobentry"),
				intCol("id_job"),
				strCol("name", lenName),
				strCol("description", lenText),
				strCol("jobentry_type", lenType),
				intCol("gui_location_x"),
				intCol("gui_location_y"),
			},
			Indexes: []dialect.IndexSpec{index("r_jobentry", "id_job")},
		},
		{
			Name: "r_job_hop",
			Columns: []dialect.ColumnSpec{
				keyCol("id_job_hop"),
				intCol("id_job"),
				intCol("id_jobentry_from"),
				intCol("id_jobentry_to"),
				boolCol("enabled"),
				boolCol("evaluation"),
				boolCol("unconditional"),
			},
			Indexes: []dialect.IndexSpec{index("r_job_hop", "id_job")},
		},
		{
			Name:    "r_job_note",
			Columns: []dialect.ColumnSpec{intCol("id_job"), intCol("id_note")},
			Indexes: []dialect.IndexSpec{index("r_job_note", "id_job")},
		},
		{
			Name:    "r_jobentry_database",
			Columns: []dialect.ColumnSpec{intCol("id_job"), intCol("id_jobentry"), intCol("id_database")},
			Indexes: []dialect.IndexSpec{index("r_jobentry_database", "id_job"), index("r_jobentry_database", "id_database")},
		},
		{
			Name:    "r_job_slave",
			Columns: []dialect.ColumnSpec{keyCol("id_job_slave"), intCol("id_job"), intCol("id_slave")},
		},
	}

	for _, t := range attributeTables {
		tables = append(tables, attributeTableSpec(t))
	}
	return tables
}
