package iam

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDataAccessPolicy(t *testing.T) {
	doc := NewDataAccessPolicy("aws", "sales-data-bucket")
	require.Len(t, doc.Statement, 1)

	st := doc.Statement[0]
	assert.Equal(t, "Allow", st.Effect)
	assert.Equal(t, []string{
		"s3:GetObject",
		"s3:ListBucket",
		"athena:StartQueryExecution",
		"athena:GetQueryResults",
	}, st.Action)
	assert.Equal(t, []string{
		"arn:aws:s3:::sales-data-bucket/*",
		"arn:aws:athena:*",
	}, st.Resource)

	txt, err := doc.JSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(txt), &decoded))
	assert.Equal(t, "2012-10-17", decoded["Version"])

	// document construction is pure
	txt2, err := NewDataAccessPolicy("aws", "sales-data-bucket").JSON()
	require.NoError(t, err)
	assert.Equal(t, txt, txt2)
}

func TestNewAssumeRolePolicyDocument(t *testing.T) {
	doc := NewAssumeRolePolicyDocument("quicksight.amazonaws.com", "glue.amazonaws.com")
	require.Len(t, doc.Statement, 1)
	require.NotNil(t, doc.Statement[0].Principal)
	assert.Equal(t, []string{"sts:AssumeRole"}, doc.Statement[0].Action)
	assert.Equal(t,
		[]string{"quicksight.amazonaws.com", "glue.amazonaws.com"},
		doc.Statement[0].Principal.Service,
	)
}
