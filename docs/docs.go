// Package docs registers the MFA service OpenAPI document with swag so
// http-swagger can serve it under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/phimfa"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/livez": {
            "get": {
                "description": "Answers 200 while the process is running.",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Liveness check",
                "responses": {
                    "200": {"description": "Service is alive", "schema": {"$ref": "#/definitions/mfasdk.HealthResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "description": "Checks database connectivity and audit delivery.",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Service is ready", "schema": {"$ref": "#/definitions/mfasdk.HealthResponse"}},
                    "503": {"description": "A dependency is failing", "schema": {"$ref": "#/definitions/mfasdk.HealthResponse"}}
                }
            }
        },
        "/v1/mfa": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Deletes the caller's enrollment and backup codes and ends every session. Requires a current TOTP code or an unused backup code.",
                "consumes": ["application/json"],
                "tags": ["MFA"],
                "summary": "Remove MFA enrollment",
                "parameters": [
                    {"description": "Confirmation code", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.ConfirmCodeRequest"}}
                ],
                "responses": {
                    "204": {"description": "Enrollment removed"},
                    "401": {"description": "Invalid code or access token", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "404": {"description": "Not enrolled", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "503": {"description": "Persistence unavailable", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        },
        "/v1/mfa/audit": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the caller's newest audit events first.",
                "produces": ["application/json"],
                "tags": ["MFA"],
                "summary": "List audit events",
                "parameters": [
                    {"type": "integer", "description": "Maximum events (1-500, default 50)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Audit events", "schema": {"$ref": "#/definitions/mfasdk.AuditEventsResponse"}},
                    "400": {"description": "Invalid limit", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "401": {"description": "Invalid or missing access token", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        },
        "/v1/mfa/backup-codes": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["MFA"],
                "summary": "Count unused backup codes",
                "responses": {
                    "200": {"description": "Remaining backup codes", "schema": {"$ref": "#/definitions/mfasdk.BackupCodesRemainingResponse"}},
                    "401": {"description": "Invalid or missing access token", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Replaces every backup code after checking a current TOTP code. Only active enrollments qualify.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["MFA"],
                "summary": "Regenerate backup codes",
                "parameters": [
                    {"description": "Current TOTP code", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.RegenerateBackupCodesRequest"}}
                ],
                "responses": {
                    "200": {"description": "New backup codes", "schema": {"$ref": "#/definitions/mfasdk.BackupCodesResponse"}},
                    "400": {"description": "Missing code", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "401": {"description": "Invalid code", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "403": {"description": "MFA temporarily disabled", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "404": {"description": "Not enrolled", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        },
        "/v1/mfa/disable": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Suspends MFA while keeping the secret and backup codes. Ends every session. Requires a current TOTP code or an unused backup code.",
                "consumes": ["application/json"],
                "tags": ["MFA"],
                "summary": "Disable MFA",
                "parameters": [
                    {"description": "Confirmation code", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.ConfirmCodeRequest"}}
                ],
                "responses": {
                    "204": {"description": "MFA disabled"},
                    "401": {"description": "Invalid code or access token", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "404": {"description": "Not enrolled", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        },
        "/v1/mfa/enable": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["MFA"],
                "summary": "Re-enable MFA",
                "responses": {
                    "200": {"description": "Whether an enrollment exists", "schema": {"$ref": "#/definitions/mfasdk.EnableResponse"}},
                    "401": {"description": "Invalid or missing access token", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        },
        "/v1/mfa/session": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Current session",
                "responses": {
                    "200": {"description": "Newest live session", "schema": {"$ref": "#/definitions/mfasdk.SessionInfo"}},
                    "404": {"description": "No live session", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Sessions"],
                "summary": "End a session",
                "parameters": [
                    {"type": "string", "description": "Session token", "name": "X-MFA-Session", "in": "header", "required": true}
                ],
                "responses": {
                    "204": {"description": "Session ended"},
                    "400": {"description": "Missing session header", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "404": {"description": "Unknown session", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        },
        "/v1/mfa/session/elevated": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Reports whether the session grants PHI access. Unknown or foreign tokens answer granted=false.",
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Check elevated access",
                "parameters": [
                    {"type": "string", "description": "Session token", "name": "X-MFA-Session", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "Access decision", "schema": {"$ref": "#/definitions/mfasdk.ElevatedAccessResponse"}},
                    "400": {"description": "Missing session header", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        },
        "/v1/mfa/setup": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Creates or replaces a pending enrollment and returns the secret and backup codes once.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["MFA"],
                "summary": "Enroll in TOTP MFA",
                "parameters": [
                    {"description": "Optional account label", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/mfasdk.SetupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Secret, backup codes and enrollment URI", "schema": {"$ref": "#/definitions/mfasdk.SetupResponse"}},
                    "400": {"description": "Invalid label", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "409": {"description": "Already enrolled", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        },
        "/v1/mfa/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["MFA"],
                "summary": "Enrollment status",
                "responses": {
                    "200": {"description": "Enrollment status", "schema": {"$ref": "#/definitions/mfasdk.StatusResponse"}},
                    "401": {"description": "Invalid or missing access token", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        },
        "/v1/mfa/verify": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Checks a TOTP or backup code and issues a session. Elevated sessions grant PHI access for a shorter time.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["MFA"],
                "summary": "Verify a code",
                "parameters": [
                    {"description": "Code and session kind", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mfasdk.VerifyRequest"}}
                ],
                "responses": {
                    "200": {"description": "Session issued", "schema": {"$ref": "#/definitions/mfasdk.VerifyResponse"}},
                    "401": {"description": "Invalid code", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "403": {"description": "MFA temporarily disabled", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "404": {"description": "Not enrolled", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/mfasdk.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "mfasdk.AuditEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "identity": {"type": "string"},
                "operation": {"type": "string"},
                "outcome": {"type": "string"},
                "reason": {"type": "string"},
                "method": {"type": "string"},
                "session_ref": {"type": "string"},
                "occurred_at": {"type": "string"}
            }
        },
        "mfasdk.AuditEventsResponse": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/mfasdk.AuditEvent"}}
            }
        },
        "mfasdk.BackupCodesRemainingResponse": {
            "type": "object",
            "properties": {"remaining": {"type": "integer"}}
        },
        "mfasdk.BackupCodesResponse": {
            "type": "object",
            "properties": {"backup_codes": {"type": "array", "items": {"type": "string"}}}
        },
        "mfasdk.ConfirmCodeRequest": {
            "type": "object",
            "properties": {"code": {"type": "string"}}
        },
        "mfasdk.ElevatedAccessResponse": {
            "type": "object",
            "properties": {"granted": {"type": "boolean"}}
        },
        "mfasdk.EnableResponse": {
            "type": "object",
            "properties": {"enabled": {"type": "boolean"}}
        },
        "mfasdk.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_description": {"type": "string"},
                "remaining_attempts": {"type": "integer"},
                "retry_after_seconds": {"type": "integer"}
            }
        },
        "mfasdk.HealthChecks": {
            "type": "object",
            "properties": {
                "database": {"type": "string"},
                "audit": {"type": "string"}
            }
        },
        "mfasdk.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "uptime": {"type": "string"},
                "version": {"type": "string"},
                "checks": {"$ref": "#/definitions/mfasdk.HealthChecks"}
            }
        },
        "mfasdk.RegenerateBackupCodesRequest": {
            "type": "object",
            "properties": {"code": {"type": "string"}}
        },
        "mfasdk.SessionInfo": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "created_at": {"type": "string"},
                "expires_at": {"type": "string"},
                "phi_access_enabled": {"type": "boolean"}
            }
        },
        "mfasdk.SetupRequest": {
            "type": "object",
            "properties": {"label": {"type": "string"}}
        },
        "mfasdk.SetupResponse": {
            "type": "object",
            "properties": {
                "secret": {"type": "string"},
                "backup_codes": {"type": "array", "items": {"type": "string"}},
                "enrollment_uri": {"type": "string"},
                "qr_code_png": {"type": "string", "format": "byte"}
            }
        },
        "mfasdk.StatusResponse": {
            "type": "object",
            "properties": {
                "identity": {"type": "string"},
                "status": {"type": "string"},
                "enrolled_at": {"type": "string"},
                "verified_at": {"type": "string"},
                "disabled_at": {"type": "string"},
                "remaining_backup_codes": {"type": "integer"}
            }
        },
        "mfasdk.VerifyRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "elevated": {"type": "boolean"}
            }
        },
        "mfasdk.VerifyResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "method": {"type": "string"},
                "remaining_attempts": {"type": "integer"},
                "session": {"$ref": "#/definitions/mfasdk.SessionInfo"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Caller token (HS256 JWT). Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "PHI MFA Service API",
	Description:      "TOTP and backup code verification issuing standard and PHI-elevated sessions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
