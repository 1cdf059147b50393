// Package domain contains the core entities of the pipeline: the persisted
// status record, the structure records that flow between stages and the
// request/result shapes of the training stage. It is independent of any
// specific executor, storage backend or delivery mechanism.
package domain
