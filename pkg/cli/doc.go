// Package cli implements rbacctl, the operator tool for the storeadmin RBAC database.
//
// Commands:
//
//	rbacctl migrate                      apply schema migrations
//	rbacctl seed [-catalog f] [-admin u] install the permission catalog and system role
//	rbacctl roles                        list roles with their grant counts
//	rbacctl check -user u -permission p -action a
//	rbacctl export [-out f] [-bucket b]  write a catalog snapshot to a file, stdout or S3
//	rbacctl audit [-limit n]             show recent audit events
//
// Every command reads its database from -db-driver and -db-dsn, which default to
// STOREADMIN_DB_DRIVER and STOREADMIN_DB_DSN.
package cli
