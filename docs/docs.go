// Package docs holds the OpenAPI description served at /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
	"schemes": {{ marshal .Schemes }},
	"swagger": "2.0",
	"info": {
		"description": "{{escape .Description}}",
		"title": "{{.Title}}",
		"contact": {},
		"version": "{{.Version}}"
	},
	"host": "{{.Host}}",
	"basePath": "{{.BasePath}}",
	"paths": {
		"/health": {
			"get": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"health"
				],
				"summary": "Service health",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/model.HealthResponse"
						}
					},
					"503": {
						"description": "Service Unavailable",
						"schema": {
							"$ref": "#/definitions/model.HealthResponse"
						}
					}
				}
			}
		},
		"/wallets": {
			"post": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"wallets"
				],
				"summary": "Enroll split-key wallet",
				"parameters": [
					{
						"type": "string",
						"description": "Caller identity",
						"name": "X-User-ID",
						"in": "header",
						"required": true
					},
					{
						"description": "Wallet material",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/model.EnrollRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "Created",
						"schema": {
							"$ref": "#/definitions/model.WalletResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					},
					"409": {
						"description": "Conflict",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					}
				}
			},
			"delete": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"wallets"
				],
				"summary": "Delete wallet",
				"parameters": [
					{
						"type": "string",
						"description": "Caller identity",
						"name": "X-User-ID",
						"in": "header",
						"required": true
					},
					{
						"type": "string",
						"description": "Wallet context (default primary)",
						"name": "context",
						"in": "query"
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/model.StatusResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					}
				}
			}
		},
		"/wallets/rotate": {
			"post": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"wallets"
				],
				"summary": "Rotate credential",
				"parameters": [
					{
						"type": "string",
						"description": "Caller identity",
						"name": "X-User-ID",
						"in": "header",
						"required": true
					},
					{
						"description": "New Share A",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/model.RotateRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/model.StatusResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					}
				}
			}
		},
		"/wallets/sign": {
			"post": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"wallets"
				],
				"summary": "Sign transaction",
				"parameters": [
					{
						"type": "string",
						"description": "Caller identity",
						"name": "X-User-ID",
						"in": "header",
						"required": true
					},
					{
						"description": "Credential and transaction",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/model.SignRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/model.SignResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					}
				}
			}
		},
		"/deposits": {
			"post": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"deposits"
				],
				"summary": "Create deposit session",
				"parameters": [
					{
						"type": "string",
						"description": "Caller identity",
						"name": "X-User-ID",
						"in": "header",
						"required": true
					},
					{
						"description": "Deposit data",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/model.CreateDepositRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "Created",
						"schema": {
							"$ref": "#/definitions/model.DepositResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					}
				}
			}
		},
		"/deposits/{id}": {
			"get": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"deposits"
				],
				"summary": "Get deposit session",
				"parameters": [
					{
						"type": "string",
						"description": "Caller identity",
						"name": "X-User-ID",
						"in": "header",
						"required": true
					},
					{
						"type": "string",
						"description": "Deposit ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/model.DepositResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					}
				}
			},
			"delete": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"deposits"
				],
				"summary": "Delete pending deposit",
				"parameters": [
					{
						"type": "string",
						"description": "Caller identity",
						"name": "X-User-ID",
						"in": "header",
						"required": true
					},
					{
						"type": "string",
						"description": "Deposit ID",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/model.StatusResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					},
					"409": {
						"description": "Conflict",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					}
				}
			}
		},
		"/deposits/{id}/detect": {
			"post": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"deposits"
				],
				"summary": "Record detected transfer",
				"parameters": [
					{
						"type": "string",
						"description": "Caller identity",
						"name": "X-User-ID",
						"in": "header",
						"required": true
					},
					{
						"type": "string",
						"description": "Deposit ID",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "Detected transfer",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/model.DetectDepositRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/model.DepositResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					},
					"409": {
						"description": "Conflict",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					}
				}
			}
		},
		"/deposits/{id}/complete": {
			"post": {
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"tags": [
					"deposits"
				],
				"summary": "Complete deposit",
				"parameters": [
					{
						"type": "string",
						"description": "Caller identity",
						"name": "X-User-ID",
						"in": "header",
						"required": true
					},
					{
						"type": "string",
						"description": "Deposit ID",
						"name": "id",
						"in": "path",
						"required": true
					},
					{
						"description": "Wallet credential",
						"name": "request",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/model.CompleteDepositRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/model.DepositResponse"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					},
					"409": {
						"description": "Conflict",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					},
					"503": {
						"description": "Service Unavailable",
						"schema": {
							"$ref": "#/definitions/model.ErrorResponse"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"model.KDFParams": {
			"type": "object",
			"properties": {
				"memoryKiB": {
					"type": "integer"
				},
				"iterations": {
					"type": "integer"
				},
				"parallelism": {
					"type": "integer"
				}
			}
		},
		"model.EnrollRequest": {
			"type": "object",
			"properties": {
				"context": {
					"type": "string"
				},
				"publicKey": {
					"type": "string"
				},
				"authMethod": {
					"type": "string"
				},
				"shareACiphertext": {
					"type": "string",
					"format": "byte"
				},
				"shareANonce": {
					"type": "string",
					"format": "byte"
				},
				"shareASalt": {
					"type": "string",
					"format": "byte"
				},
				"kdf": {
					"$ref": "#/definitions/model.KDFParams"
				},
				"prfSalt": {
					"type": "string",
					"format": "byte"
				},
				"pin": {
					"type": "string"
				},
				"shareB": {
					"type": "string",
					"format": "byte"
				},
				"apiKeyId": {
					"type": "string"
				}
			}
		},
		"model.RotateRequest": {
			"type": "object",
			"properties": {
				"context": {
					"type": "string"
				},
				"authMethod": {
					"type": "string"
				},
				"shareACiphertext": {
					"type": "string",
					"format": "byte"
				},
				"shareANonce": {
					"type": "string",
					"format": "byte"
				},
				"shareASalt": {
					"type": "string",
					"format": "byte"
				},
				"kdf": {
					"$ref": "#/definitions/model.KDFParams"
				},
				"prfSalt": {
					"type": "string",
					"format": "byte"
				},
				"pin": {
					"type": "string"
				},
				"apiKeyId": {
					"type": "string"
				}
			}
		},
		"model.SignRequest": {
			"type": "object",
			"properties": {
				"context": {
					"type": "string"
				},
				"credential": {
					"type": "string",
					"format": "byte"
				},
				"transaction": {
					"type": "string"
				}
			}
		},
		"model.SignResponse": {
			"type": "object",
			"properties": {
				"transaction": {
					"type": "string"
				},
				"signature": {
					"type": "string"
				}
			}
		},
		"model.WalletResponse": {
			"type": "object",
			"properties": {
				"userId": {
					"type": "string"
				},
				"context": {
					"type": "string"
				},
				"publicKey": {
					"type": "string"
				},
				"authMethod": {
					"type": "string"
				},
				"schemeVersion": {
					"type": "integer"
				},
				"createdAt": {
					"type": "string"
				}
			}
		},
		"model.CreateDepositRequest": {
			"type": "object",
			"properties": {
				"walletAddress": {
					"type": "string"
				},
				"walletKind": {
					"type": "string"
				},
				"depositKind": {
					"type": "string"
				},
				"currency": {
					"type": "string"
				},
				"inputMint": {
					"type": "string"
				}
			}
		},
		"model.DetectDepositRequest": {
			"type": "object",
			"properties": {
				"signature": {
					"type": "string"
				},
				"amountLamports": {
					"type": "integer"
				},
				"sourceAddress": {
					"type": "string"
				}
			}
		},
		"model.CompleteDepositRequest": {
			"type": "object",
			"properties": {
				"context": {
					"type": "string"
				},
				"credential": {
					"type": "string",
					"format": "byte"
				}
			}
		},
		"model.DepositResponse": {
			"type": "object",
			"properties": {
				"id": {
					"type": "string"
				},
				"status": {
					"type": "string"
				},
				"walletAddress": {
					"type": "string"
				},
				"depositKind": {
					"type": "string"
				},
				"currency": {
					"type": "string"
				},
				"detectedSignature": {
					"type": "string"
				},
				"depositAmountLamports": {
					"type": "integer"
				},
				"withdrawnAmountLamports": {
					"type": "integer"
				},
				"remainingLamports": {
					"type": "integer"
				},
				"depositSol": {
					"type": "string"
				},
				"withdrawalAvailableAt": {
					"type": "string"
				},
				"expiresAt": {
					"type": "string"
				},
				"batchId": {
					"type": "string"
				},
				"qr": {
					"type": "string"
				}
			}
		},
		"model.StatusResponse": {
			"type": "object",
			"properties": {
				"success": {
					"type": "boolean"
				},
				"message": {
					"type": "string"
				}
			}
		},
		"model.HealthResponse": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string"
				},
				"sidecar": {
					"type": "string"
				}
			}
		},
		"model.ErrorResponse": {
			"type": "object",
			"properties": {
				"error": {
					"type": "string"
				},
				"kind": {
					"type": "string"
				}
			}
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Split Custody API",
	Description:      "Split-key Solana custody: wallet enrollment, signing and deposit sessions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
