package sqlinline

const QInsertJob = `--sql 16a721ff-3cf2-4a56-a897-ae0532142c54
insert into jobs (
  id, project_name, input_filename, source_path,
  asr_clip_seconds, hook_clip_seconds, status,
  error_message, cancel_requested, artifacts, meta,
  created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, '', 0, ?, ?, ?, ?);
`

const QGetJob = `--sql 076ec0be-d5d1-463e-9115-f3ccc62217d4
select id, project_name, input_filename, source_path,
       asr_clip_seconds, hook_clip_seconds, status,
       error_message, cancel_requested, artifacts, meta,
       created_at, updated_at
from jobs
where id = ?;
`

const QListJobs = `--sql bcf124b1-db8d-45b1-9c41-801266e32f6b
select id, project_name, input_filename, source_path,
       asr_clip_seconds, hook_clip_seconds, status,
       error_message, cancel_requested, artifacts, meta,
       created_at, updated_at
from jobs
order by created_at desc, id desc;
`

const QListUnfinishedJobs = `--sql a367cf40-cac5-4b2c-880a-60086603f654
select id, project_name, input_filename, source_path,
       asr_clip_seconds, hook_clip_seconds, status,
       error_message, cancel_requested, artifacts, meta,
       created_at, updated_at
from jobs
where status not in ('completed', 'failed', 'canceled')
order by created_at asc;
`

const QDeleteJob = `--sql aa3ce3bc-bd11-48c4-a2de-5cf76b97ea4f
delete from jobs where id = ?;
`

const QSetJobStatus = `--sql c757156e-2bba-4f56-a82f-8114a43fd9f2
update jobs set status = ?, updated_at = ? where id = ?;
`

const QSetJobError = `--sql 4c56e551-9968-4f00-bae5-928fccbc72a1
update jobs set status = ?, error_message = ?, updated_at = ? where id = ?;
`

const QSetJobArtifacts = `--sql 509f7af1-894b-4c2f-a246-b5fc5825ce11
update jobs set artifacts = ?, updated_at = ? where id = ?;
`

const QSetJobMeta = `--sql 7da9e470-792b-441b-b2fb-b24f939181fd
update jobs set meta = ?, updated_at = ? where id = ?;
`

const QRequestCancel = `--sql 75b640c9-bf1b-43fd-8f10-2b449b6c28c8
update jobs set cancel_requested = 1, updated_at = ? where id = ?;
`

const QGetCancelRequested = `--sql bcc961dd-6501-433b-960c-7ea0dd8d28a5
select cancel_requested from jobs where id = ?;
`
