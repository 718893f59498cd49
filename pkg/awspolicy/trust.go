package awspolicy

// BuildTrustPolicy produces the federated trust document for a role:
// cognito-identity may assume the role only when the audience claim
// matches the given identity pool and the principal authenticated.
func BuildTrustPolicy(identityPoolID string) Document {
	return Document{
		Version: "2012-10-17",
		Statement: []Statement{
			{
				Effect:    "Allow",
				Principal: &Principal{Federated: "cognito-identity.amazonaws.com"},
				Action:    []string{"sts:AssumeRoleWithWebIdentity"},
				Condition: map[string]map[string]any{
					"StringEquals": {
						"cognito-identity.amazonaws.com:aud": identityPoolID,
					},
					"ForAnyValue:StringLike": {
						"cognito-identity.amazonaws.com:amr": "authenticated",
					},
				},
			},
		},
	}
}
