package awspolicy

// Action sets shared by the tenant templates.
var (
	tableReadWrite = []string{
		"dynamodb:GetItem",
		"dynamodb:BatchGetItem",
		"dynamodb:Query",
		"dynamodb:PutItem",
		"dynamodb:UpdateItem",
		"dynamodb:DeleteItem",
		"dynamodb:BatchWriteItem",
		"dynamodb:DescribeTable",
		"dynamodb:CreateTable",
	}
	tableReadOnly = []string{
		"dynamodb:GetItem",
		"dynamodb:BatchGetItem",
		"dynamodb:Query",
		"dynamodb:DescribeTable",
		"dynamodb:CreateTable",
	}
	tableReadScan = []string{
		"dynamodb:GetItem",
		"dynamodb:BatchGetItem",
		"dynamodb:Scan",
		"dynamodb:Query",
		"dynamodb:DescribeTable",
		"dynamodb:CreateTable",
	}
)

func tenantAdminPolicy(tenantID string, a arns) Document {
	return Document{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Sid:       "TenantAdminUserTable",
				Effect:    "Allow",
				Action:    tableReadWrite,
				Resource:  []string{a.userTable, a.userTable + "/*"},
				Condition: leadingKeys(tenantID),
			},
			{
				Sid:       "TenantAdminOrderTable",
				Effect:    "Allow",
				Action:    tableReadWrite,
				Resource:  []string{a.orderTable},
				Condition: leadingKeys(tenantID),
			},
			{
				// Deliberately unscoped: tightening the product table is
				// left to a later exercise. Do not add a leading-key
				// condition here without treating it as a behavior change.
				Sid:      "TenantAdminProductTable",
				Effect:   "Allow",
				Action:   tableReadWrite,
				Resource: []string{a.productTable},
			},
			{
				Sid:    "TenantCognitoAccess",
				Effect: "Allow",
				Action: []string{
					"cognito-idp:AdminCreateUser",
					"cognito-idp:AdminDeleteUser",
					"cognito-idp:AdminDisableUser",
					"cognito-idp:AdminEnableUser",
					"cognito-idp:AdminGetUser",
					"cognito-idp:ListUsers",
					"cognito-idp:AdminUpdateUserAttributes",
				},
				Resource: []string{a.userPool},
			},
		},
	}
}

func tenantUserPolicy(tenantID string, a arns) Document {
	return Document{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Sid:       "TenantReadOnlyUserTable",
				Effect:    "Allow",
				Action:    tableReadOnly,
				Resource:  []string{a.userTable, a.userTable + "/*"},
				Condition: leadingKeys(tenantID),
			},
			{
				Sid:       "ReadWriteOrderTable",
				Effect:    "Allow",
				Action:    tableReadWrite,
				Resource:  []string{a.orderTable},
				Condition: leadingKeys(tenantID),
			},
			{
				Sid:       "TenantReadOnlyProductTable",
				Effect:    "Allow",
				Action:    tableReadOnly,
				Resource:  []string{a.productTable},
				Condition: leadingKeys(tenantID),
			},
			{
				Sid:    "TenantCognitoAccess",
				Effect: "Allow",
				Action: []string{
					"cognito-idp:AdminGetUser",
					"cognito-idp:ListUsers",
				},
				Resource: []string{a.userPool},
			},
		},
	}
}

func systemAdminPolicy(a arns) Document {
	return Document{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Sid:      "SystemAdminTenantTable",
				Effect:   "Allow",
				Action:   []string{"dynamodb:*"},
				Resource: []string{a.tenantTable},
			},
			{
				Sid:      "SystemAdminUserTable",
				Effect:   "Allow",
				Action:   []string{"dynamodb:*"},
				Resource: []string{a.userTable, a.userTable + "/*"},
			},
			{
				Sid:      "SystemAdminOrderTable",
				Effect:   "Allow",
				Action:   []string{"dynamodb:*"},
				Resource: []string{a.orderTable},
			},
			{
				Sid:      "SystemAdminProductTable",
				Effect:   "Allow",
				Action:   []string{"dynamodb:*", "dynamodb:DescribeTable"},
				Resource: []string{a.productTable},
			},
			{
				Sid:      "FullCognitoFederatedIdentityAccess",
				Effect:   "Allow",
				Action:   []string{"cognito-identity:*"},
				Resource: []string{"*"},
			},
			{
				Sid:      "FullCognitoUserPoolAccess",
				Effect:   "Allow",
				Action:   []string{"cognito-idp:*"},
				Resource: []string{"*"},
			},
		},
	}
}

func systemUserPolicy(a arns) Document {
	return Document{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Sid:      "SystemUserTenantTable",
				Effect:   "Allow",
				Action:   tableReadScan,
				Resource: []string{a.tenantTable},
			},
			{
				Sid:      "SystemUserUserTable",
				Effect:   "Allow",
				Action:   tableReadScan,
				Resource: []string{a.userTable},
			},
			{
				Sid:      "SystemUserOrderTable",
				Effect:   "Allow",
				Action:   tableReadScan,
				Resource: []string{a.orderTable},
			},
			{
				Sid:      "SystemUserProductTable",
				Effect:   "Allow",
				Action:   tableReadScan,
				Resource: []string{a.productTable},
			},
			{
				Sid:    "ReadCognitoFederatedIdentityAccess",
				Effect: "Allow",
				Action: []string{
					"cognito-identity:DescribeIdentity",
					"cognito-identity:DescribeIdentityPool",
					"cognito-identity:GetIdentityPoolRoles",
					"cognito-identity:ListIdentities",
					"cognito-identity:ListIdentityPools",
					"cognito-identity:LookupDeveloperIdentity",
				},
				Resource: []string{"*"},
			},
			{
				Sid:    "ReadCognitoUserPoolsAccess",
				Effect: "Allow",
				Action: []string{
					"cognito-idp:AdminGetDevice",
					"cognito-idp:AdminGetUser",
					"cognito-idp:AdminListDevices",
					"cognito-idp:AdminListGroupsForUser",
					"cognito-idp:AdminResetUserPassword",
					"cognito-idp:DescribeUserImportJob",
					"cognito-idp:DescribeUserPool",
					"cognito-idp:DescribeUserPoolClient",
					"cognito-idp:GetCSVHeader",
					"cognito-idp:GetGroup",
					"cognito-idp:ListGroups",
					"cognito-idp:ListUserImportJobs",
					"cognito-idp:ListUserPoolClients",
					"cognito-idp:ListUserPools",
					"cognito-idp:ListUsers",
					"cognito-idp:ListUsersInGroup",
				},
				Resource: []string{"*"},
			},
		},
	}
}
