// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package lake

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"gocloud.dev/blob"
	"gocloud.dev/blob/azureblob"

	bridge "github.com/curious-bigcat/onelake-snowflake-iceberg"
)

// Constants for Azure configuration options.
const (
	AzureAccountName   = "azure.account.name"
	AzureSasToken      = "azure.sas.token"
	AzureStorageDomain = "azure.storage.domain"
	AzureProtocol      = "azure.protocol"
)

func init() {
	Register("azure", OpenerFunc(openAzureBucket))
	Register("abfss", OpenerFunc(openAzureBucket))
}

func parseAzureOptions(props bridge.Properties) *azureblob.ServiceURLOptions {
	opts := azureblob.NewDefaultServiceURLOptions()
	if account := props[AzureAccountName]; account != "" {
		opts.AccountName = account
	}
	if token := props[AzureSasToken]; token != "" {
		opts.SASToken = token
	}
	if domain := props[AzureStorageDomain]; domain != "" {
		opts.StorageDomain = domain
	}
	if protocol := props[AzureProtocol]; protocol != "" {
		opts.Protocol = protocol
	}

	return opts
}

// azureLocation normalizes the two accepted URL shapes:
//
//	azure://host/container/path  (Snowflake external volume form)
//	abfss://container@host/path  (ADLS form)
//
// OneLake uses the first form with the onelake.blob.fabric host, where
// the "container" is the Fabric workspace.
func azureLocation(parsed *url.URL) (host, containerName, prefix string) {
	if parsed.User != nil {
		// abfss://container@account.dfs.core.windows.net/path
		host = strings.Replace(parsed.Host, ".dfs.", ".blob.", 1)
		containerName = parsed.User.Username()
		prefix = strings.TrimPrefix(parsed.Path, "/")

		return host, containerName, prefix
	}

	containerName, prefix = splitContainerPath(parsed)

	return parsed.Host, containerName, prefix
}

func openAzureBucket(ctx context.Context, parsed *url.URL, props bridge.Properties) (*blob.Bucket, string, error) {
	host, containerName, prefix := azureLocation(parsed)
	if containerName == "" {
		return nil, "", fmt.Errorf("azure location %q has no container", parsed.String())
	}

	// SAS tokens go through the gocloud service URL machinery; without
	// one we authenticate with the ambient Azure credential, which is
	// what OneLake workspaces expect.
	if props[AzureSasToken] != "" {
		opts := parseAzureOptions(props)
		serviceURL, err := azureblob.NewServiceURL(opts)
		if err != nil {
			return nil, "", err
		}
		client, err := azureblob.NewDefaultClient(serviceURL, azureblob.ContainerName(containerName))
		if err != nil {
			return nil, "", err
		}
		bucket, err := azureblob.OpenBucket(ctx, client, nil)
		if err != nil {
			return nil, "", err
		}

		return bucket, prefix, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, "", fmt.Errorf("acquiring azure credential: %w", err)
	}

	containerURL := fmt.Sprintf("https://%s/%s", host, containerName)
	client, err := container.NewClient(containerURL, cred, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating container client for %q: %w", containerURL, err)
	}

	bucket, err := azureblob.OpenBucket(ctx, client, nil)
	if err != nil {
		return nil, "", err
	}

	return bucket, prefix, nil
}
