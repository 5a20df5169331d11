package receiver

import "errors"

func errInconsistentTransfer() error {
	return errors.New("total_chunks/global_crc32 changed mid-transfer")
}

func errGlobalCRCMismatch() error {
	return errors.New("reassembled payload crc32 does not match global_crc32")
}

func errChunkQuiescence() error {
	return errors.New("no chunk activity before chunk_timeout elapsed")
}
