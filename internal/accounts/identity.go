package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
)

// CognitoAPI is the subset of the Cognito user pool client used here.
type CognitoAPI interface {
	AdminDeleteUser(ctx context.Context, params *cip.AdminDeleteUserInput, optFns ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
}

// CognitoIdentityStore deletes sign-in identities from a Cognito user pool.
type CognitoIdentityStore struct {
	client CognitoAPI
	poolID string
}

func NewCognitoIdentityStore(client CognitoAPI, poolID string) *CognitoIdentityStore {
	if client == nil || poolID == "" {
		return nil
	}
	return &CognitoIdentityStore{client: client, poolID: poolID}
}

// DeleteIdentity removes uid from the pool. absent is true when it was already gone,
// which is not an error.
func (s *CognitoIdentityStore) DeleteIdentity(ctx context.Context, uid string) (absent bool, err error) {
	_, err = s.client.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
		UserPoolId: aws.String(s.poolID),
		Username:   aws.String(uid),
	})
	if err == nil {
		return false, nil
	}
	var notFound *types.UserNotFoundException
	if errors.As(err, &notFound) {
		return true, nil
	}
	return false, fmt.Errorf("accounts: cognito delete %s: %w", uid, err)
}
