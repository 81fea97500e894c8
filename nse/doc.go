// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nse downloads daily equity bhavcopy files from the National Stock
// Exchange of India archives.
//
// The exchange publishes one zip archive per trading session, containing a
// single CSV file. Two layouts exist: the historical bhavcopy (files named
// cmDDMONYYYYbhav.csv) used until 2024-07-05, and the UDiFF layout (files named
// BhavCopy_NSE_CM_0_0_0_YYYYMMDD_F_0000.csv) published since 2024-07-08. The
// archive URL depends on the date accordingly, see ArchiveURL.
//
// Non-trading days have no archive, and the server responds with an error.
// Callers are expected to treat this as a normal per-day failure.
//
// A Session owns a temporary directory for the downloaded archives; always
// Close it when done. The server base URL is injected into the context with
// UseClient, and the HTTP client itself is taken from the context by the
// github.com/stockparfait/fetch package.
package nse
