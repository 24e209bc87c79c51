// Package iam implements various IAM components.
package iam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_iam_v2 "github.com/aws/aws-sdk-go-v2/service/iam"
	iam_types "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"go.uber.org/zap"
)

// API is the subset of the IAM API used by this package.
type API interface {
	CreatePolicy(ctx context.Context, input *aws_iam_v2.CreatePolicyInput, optFns ...func(*aws_iam_v2.Options)) (*aws_iam_v2.CreatePolicyOutput, error)
	DeletePolicy(ctx context.Context, input *aws_iam_v2.DeletePolicyInput, optFns ...func(*aws_iam_v2.Options)) (*aws_iam_v2.DeletePolicyOutput, error)
	CreateRole(ctx context.Context, input *aws_iam_v2.CreateRoleInput, optFns ...func(*aws_iam_v2.Options)) (*aws_iam_v2.CreateRoleOutput, error)
	GetRole(ctx context.Context, input *aws_iam_v2.GetRoleInput, optFns ...func(*aws_iam_v2.Options)) (*aws_iam_v2.GetRoleOutput, error)
	DeleteRole(ctx context.Context, input *aws_iam_v2.DeleteRoleInput, optFns ...func(*aws_iam_v2.Options)) (*aws_iam_v2.DeleteRoleOutput, error)
	AttachRolePolicy(ctx context.Context, input *aws_iam_v2.AttachRolePolicyInput, optFns ...func(*aws_iam_v2.Options)) (*aws_iam_v2.AttachRolePolicyOutput, error)
	DetachRolePolicy(ctx context.Context, input *aws_iam_v2.DetachRolePolicyInput, optFns ...func(*aws_iam_v2.Options)) (*aws_iam_v2.DetachRolePolicyOutput, error)
}

// PolicyDocument is the IAM policy document.
type PolicyDocument struct {
	Version   string           `json:"Version"`
	Statement []StatementEntry `json:"Statement"`
}

// StatementEntry is the entry in IAM policy document "Statement" field.
type StatementEntry struct {
	Effect    string          `json:"Effect,omitempty"`
	Action    []string        `json:"Action,omitempty"`
	Resource  []string        `json:"Resource,omitempty"`
	Principal *PrincipalEntry `json:"Principal,omitempty"`
}

// PrincipalEntry represents the policy document Principal.
type PrincipalEntry struct {
	Service []string `json:"Service,omitempty"`
}

// JSON marshals the policy document for IAM API calls.
func (d PolicyDocument) JSON() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NewDataAccessPolicy builds the permission grant the analytics stack
// needs: read access to the sales data bucket and Athena query execution.
func NewDataAccessPolicy(partition string, bucket string) PolicyDocument {
	return PolicyDocument{
		Version: "2012-10-17",
		Statement: []StatementEntry{
			{
				Effect: "Allow",
				Action: []string{
					"s3:GetObject",
					"s3:ListBucket",
					"athena:StartQueryExecution",
					"athena:GetQueryResults",
				},
				Resource: []string{
					fmt.Sprintf("arn:%s:s3:::%s/*", partition, bucket),
					fmt.Sprintf("arn:%s:athena:*", partition),
				},
			},
		},
	}
}

// NewAssumeRolePolicyDocument builds a trust policy for the given
// service principals.
func NewAssumeRolePolicyDocument(servicePrincipals ...string) PolicyDocument {
	return PolicyDocument{
		Version: "2012-10-17",
		Statement: []StatementEntry{
			{
				Effect:    "Allow",
				Action:    []string{"sts:AssumeRole"},
				Principal: &PrincipalEntry{Service: servicePrincipals},
			},
		},
	}
}

// EnsurePolicy creates the managed policy, tolerating a previous run
// having created it already. Returns the policy ARN.
func EnsurePolicy(
	ctx context.Context,
	lg *zap.Logger,
	iamAPI API,
	partition string,
	accountID string,
	policyName string,
	doc PolicyDocument) (string, error) {

	txt, err := doc.JSON()
	if err != nil {
		return "", err
	}
	lg.Info("creating policy", zap.String("policy-name", policyName))
	out, err := iamAPI.CreatePolicy(ctx, &aws_iam_v2.CreatePolicyInput{
		PolicyName:     aws_v2.String(policyName),
		PolicyDocument: aws_v2.String(txt),
	})
	if err != nil {
		var exists *iam_types.EntityAlreadyExistsException
		if errors.As(err, &exists) {
			arn := fmt.Sprintf("arn:%s:iam::%s:policy/%s", partition, accountID, policyName)
			lg.Warn("policy already exists", zap.String("policy-arn", arn))
			return arn, nil
		}
		lg.Warn("failed to create policy", zap.String("policy-name", policyName), zap.Error(err))
		return "", err
	}
	arn := aws_v2.ToString(out.Policy.Arn)
	lg.Info("created policy", zap.String("policy-arn", arn))
	return arn, nil
}

// EnsureRole creates the role with the given trust policy, tolerating
// a previous run having created it already. Returns the role ARN.
func EnsureRole(
	ctx context.Context,
	lg *zap.Logger,
	iamAPI API,
	roleName string,
	assumeDoc PolicyDocument) (string, error) {

	txt, err := assumeDoc.JSON()
	if err != nil {
		return "", err
	}
	lg.Info("creating role", zap.String("role-name", roleName))
	out, err := iamAPI.CreateRole(ctx, &aws_iam_v2.CreateRoleInput{
		RoleName:                 aws_v2.String(roleName),
		AssumeRolePolicyDocument: aws_v2.String(txt),
	})
	if err != nil {
		var exists *iam_types.EntityAlreadyExistsException
		if !errors.As(err, &exists) {
			lg.Warn("failed to create role", zap.String("role-name", roleName), zap.Error(err))
			return "", err
		}
		lg.Warn("role already exists", zap.String("role-name", roleName))
		getOut, gerr := iamAPI.GetRole(ctx, &aws_iam_v2.GetRoleInput{
			RoleName: aws_v2.String(roleName),
		})
		if gerr != nil {
			return "", gerr
		}
		return aws_v2.ToString(getOut.Role.Arn), nil
	}
	arn := aws_v2.ToString(out.Role.Arn)
	lg.Info("created role", zap.String("role-arn", arn))
	return arn, nil
}

// AttachRolePolicy attaches the managed policy to the role.
// The underlying API is idempotent.
func AttachRolePolicy(
	ctx context.Context,
	lg *zap.Logger,
	iamAPI API,
	roleName string,
	policyARN string) error {

	lg.Info("attaching policy to role",
		zap.String("role-name", roleName),
		zap.String("policy-arn", policyARN),
	)
	_, err := iamAPI.AttachRolePolicy(ctx, &aws_iam_v2.AttachRolePolicyInput{
		RoleName:  aws_v2.String(roleName),
		PolicyArn: aws_v2.String(policyARN),
	})
	if err != nil {
		lg.Warn("failed to attach policy", zap.String("role-name", roleName), zap.Error(err))
		return err
	}
	lg.Info("attached policy to role", zap.String("role-name", roleName))
	return nil
}

// DeleteRole detaches the policy and deletes the role and the policy.
// Missing entities are tolerated so deletes can be retried.
func DeleteRole(
	ctx context.Context,
	lg *zap.Logger,
	iamAPI API,
	roleName string,
	policyARN string) error {

	lg.Info("deleting role", zap.String("role-name", roleName))

	if _, err := iamAPI.DetachRolePolicy(ctx, &aws_iam_v2.DetachRolePolicyInput{
		RoleName:  aws_v2.String(roleName),
		PolicyArn: aws_v2.String(policyARN),
	}); err != nil && !isNoSuchEntity(err) {
		lg.Warn("failed to detach policy", zap.String("role-name", roleName), zap.Error(err))
		return err
	}
	if _, err := iamAPI.DeleteRole(ctx, &aws_iam_v2.DeleteRoleInput{
		RoleName: aws_v2.String(roleName),
	}); err != nil && !isNoSuchEntity(err) {
		lg.Warn("failed to delete role", zap.String("role-name", roleName), zap.Error(err))
		return err
	}
	if _, err := iamAPI.DeletePolicy(ctx, &aws_iam_v2.DeletePolicyInput{
		PolicyArn: aws_v2.String(policyARN),
	}); err != nil && !isNoSuchEntity(err) {
		lg.Warn("failed to delete policy", zap.String("policy-arn", policyARN), zap.Error(err))
		return err
	}

	lg.Info("deleted role", zap.String("role-name", roleName))
	return nil
}

func isNoSuchEntity(err error) bool {
	var notFound *iam_types.NoSuchEntityException
	return errors.As(err, &notFound)
}
